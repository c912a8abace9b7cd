package voucher

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// CodeLength is the number of characters in a redemption code.
const CodeLength = 8

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Coder derives canonical redemption codes from instrument ids
type Coder struct {
	secret []byte
}

// NewCoder returns a Coder keyed by secret. An empty secret still yields
// deterministic codes, but anyone who knows an id can then compute its code.
func NewCoder(secret string) *Coder {
	return &Coder{secret: []byte(secret)}
}

// Code returns the 8-character uppercase alphanumeric code for id.
func (c *Coder) Code(instrumentId string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(instrumentId))
	sum := mac.Sum(nil)

	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		// two bytes per character keeps the modulo bias below 0.06%
		v := uint16(sum[2*i])<<8 | uint16(sum[2*i+1])
		b.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}
	return b.String()
}

// Matches reports whether presented is the canonical code for id.
// Comparison ignores surrounding whitespace and letter case.
func (c *Coder) Matches(instrumentId, presented string) bool {
	want := c.Code(instrumentId)
	got := NormalizeCode(presented)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// NormalizeCode trims and upper-cases a presented code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
