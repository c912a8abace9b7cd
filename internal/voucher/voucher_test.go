package voucher

import (
	"strings"
	"testing"

	"reward-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeIsDeterministicAndWellFormed(t *testing.T) {
	c := NewCoder("secret")
	id := "6f1c1b7e-3a52-4f43-9a53-8c1d2f7e9b10"

	code := c.Code(id)
	assert.Len(t, code, CodeLength)
	assert.Equal(t, code, c.Code(id))
	for _, r := range code {
		assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
	}
}

func TestCodeDependsOnSecretAndId(t *testing.T) {
	a := NewCoder("one")
	b := NewCoder("two")
	assert.NotEqual(t, a.Code("id-1"), b.Code("id-1"))
	assert.NotEqual(t, a.Code("id-1"), a.Code("id-2"))
}

func TestMatchesNormalizes(t *testing.T) {
	c := NewCoder("secret")
	code := c.Code("abc")

	assert.True(t, c.Matches("abc", code))
	assert.True(t, c.Matches("abc", "  "+strings.ToLower(code)+" "))
	assert.False(t, c.Matches("abc", "AAAAAAAA"))
	assert.False(t, c.Matches("abc", ""))
}

func TestPayloadWireFormat(t *testing.T) {
	c := NewCoder("secret")
	raw, err := c.EncodePayload(models.KindCoupon, "abc")
	require.NoError(t, err)

	want := `{"type":"coupon","instrumentId":"abc","code":"` + c.Code("abc") + `"}`
	assert.Equal(t, want, raw)

	p, err := DecodePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, models.KindCoupon, p.Type)
	assert.Equal(t, "abc", p.InstrumentId)
}

func TestDecodePayloadRejectsBadInput(t *testing.T) {
	cases := []string{
		`not json`,
		`{"type":"gift","instrumentId":"abc","code":"ABCDEFGH"}`,
		`{"type":"coupon","instrumentId":"","code":"ABCDEFGH"}`,
		`{"type":"coupon","instrumentId":"abc","code":"SHORT"}`,
	}
	for _, raw := range cases {
		_, err := DecodePayload(raw)
		assert.Error(t, err, raw)
	}
}

func TestEncodePayloadRejectsUnknownKind(t *testing.T) {
	_, err := NewCoder("").EncodePayload(models.InstrumentKind("gift"), "abc")
	assert.Error(t, err)
}
