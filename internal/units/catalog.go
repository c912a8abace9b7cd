package units

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"reward-ledger-go/internal/models"

	"gopkg.in/yaml.v2"
)

// DefaultUnits is used when no units file is configured or found.
var DefaultUnits = []models.UnitConfig{
	{Symbol: "USD", Precision: 2, Monetary: true},
	{Symbol: "GEMS", Precision: 0, Monetary: true},
	{Symbol: "POINTS", Precision: 0, Monetary: true},
	{Symbol: "PERCENT_OFF", Precision: 0, Monetary: false},
	{Symbol: "FREE_ITEM", Precision: 0, Monetary: false},
	{Symbol: "SHARES", Precision: 0, Monetary: false},
}

type catalogFile struct {
	Units []models.UnitConfig `yaml:"units"`
}

// Catalog resolves unit symbols to their precision and ledger behaviour
type Catalog struct {
	units map[string]models.UnitConfig
}

func NewCatalog(configs []models.UnitConfig) (*Catalog, error) {
	c := &Catalog{units: make(map[string]models.UnitConfig, len(configs))}
	for i, u := range configs {
		if u.Symbol == "" {
			return nil, fmt.Errorf("unit at index %d missing symbol", i)
		}
		if u.Precision < 0 {
			return nil, fmt.Errorf("unit %s has negative precision %d", u.Symbol, u.Precision)
		}
		u.Symbol = strings.ToUpper(u.Symbol)
		if _, dup := c.units[u.Symbol]; dup {
			return nil, fmt.Errorf("unit %s defined twice", u.Symbol)
		}
		c.units[u.Symbol] = u
	}
	return c, nil
}

// Default returns a catalog built from DefaultUnits.
func Default() *Catalog {
	c, _ := NewCatalog(DefaultUnits)
	return c
}

// Load reads a units YAML file. A missing file yields the default catalog.
func Load(unitsFile string) (*Catalog, error) {
	if unitsFile == "" {
		return Default(), nil
	}

	var unitsPath string
	if filepath.IsAbs(unitsFile) {
		unitsPath = unitsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		unitsPath = filepath.Join(wd, unitsFile)
	}

	data, err := os.ReadFile(unitsPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", unitsFile, err)
	}

	var config catalogFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", unitsFile, err)
	}
	if len(config.Units) == 0 {
		return nil, fmt.Errorf("%s defines no units", unitsFile)
	}

	return NewCatalog(config.Units)
}

// Lookup returns the unit config for symbol (case-insensitive).
func (c *Catalog) Lookup(symbol string) (models.UnitConfig, bool) {
	u, ok := c.units[strings.ToUpper(symbol)]
	return u, ok
}

// IsMonetary reports whether amounts in symbol move the ledger.
func (c *Catalog) IsMonetary(symbol string) bool {
	u, ok := c.Lookup(symbol)
	return ok && u.Monetary
}

// Precision returns the number of decimal places of the smallest unit.
func (c *Catalog) Precision(symbol string) int32 {
	if u, ok := c.Lookup(symbol); ok {
		return u.Precision
	}
	return 0
}

// Symbols returns all configured unit symbols, sorted.
func (c *Catalog) Symbols() []string {
	symbols := make([]string, 0, len(c.units))
	for s := range c.units {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Save writes the catalog in the format Load reads. An existing file is
// left untouched and reported with os.ErrExist.
func Save(unitsFile string, c *Catalog) error {
	configs := make([]models.UnitConfig, 0, len(c.units))
	for _, s := range c.Symbols() {
		configs = append(configs, c.units[s])
	}

	data, err := yaml.Marshal(catalogFile{Units: configs})
	if err != nil {
		return fmt.Errorf("unable to encode units: %w", err)
	}

	f, err := os.OpenFile(unitsFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("unable to write %s: %w", unitsFile, err)
	}
	return f.Close()
}
