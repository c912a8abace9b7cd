package units

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reward-ledger-go/internal/models"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	tests := []struct {
		symbol    string
		monetary  bool
		precision int32
	}{
		{"USD", true, 2},
		{"gems", true, 0},
		{"PERCENT_OFF", false, 0},
		{"FREE_ITEM", false, 0},
		{"UNKNOWN", false, 0},
	}
	for _, tt := range tests {
		if got := c.IsMonetary(tt.symbol); got != tt.monetary {
			t.Errorf("IsMonetary(%q) = %v, want %v", tt.symbol, got, tt.monetary)
		}
		if got := c.Precision(tt.symbol); got != tt.precision {
			t.Errorf("Precision(%q) = %d, want %d", tt.symbol, got, tt.precision)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "units.yaml")
	content := `units:
  - symbol: USDC
    precision: 6
    monetary: true
  - symbol: VIP_PASS
    precision: 0
    monetary: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write units file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Precision("USDC") != 6 {
		t.Errorf("expected USDC precision 6, got %d", c.Precision("USDC"))
	}
	if c.IsMonetary("VIP_PASS") {
		t.Error("expected VIP_PASS to be non-monetary")
	}
	if _, ok := c.Lookup("USD"); ok {
		t.Error("file catalog should not include defaults")
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !c.IsMonetary("USD") {
		t.Error("expected default catalog when file is missing")
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]models.UnitConfig{{Symbol: "USD"}, {Symbol: "usd"}})
	if err == nil {
		t.Fatal("expected duplicate unit error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.yaml")

	if err := Save(path, Default()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got, want := len(loaded.Symbols()), len(DefaultUnits); got != want {
		t.Fatalf("loaded %d units, want %d", got, want)
	}
	if !loaded.IsMonetary("USD") || loaded.Precision("USD") != 2 {
		t.Error("USD should round-trip as monetary with precision 2")
	}

	if err := Save(path, Default()); !errors.Is(err, os.ErrExist) {
		t.Errorf("second Save error = %v, want os.ErrExist", err)
	}
}
