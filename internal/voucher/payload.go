package voucher

import (
	"encoding/json"
	"fmt"

	"reward-ledger-go/internal/models"
)

// ScanPayload is the content encoded into point-of-sale scannable codes.
// The field order and names are the wire contract external scanners honor.
type ScanPayload struct {
	Type         models.InstrumentKind `json:"type"`
	InstrumentId string                `json:"instrumentId"`
	Code         string                `json:"code"`
}

// EncodePayload renders the compact JSON payload for an instrument.
func (c *Coder) EncodePayload(kind models.InstrumentKind, instrumentId string) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("invalid instrument kind %q", kind)
	}
	data, err := json.Marshal(ScanPayload{
		Type:         kind,
		InstrumentId: instrumentId,
		Code:         c.Code(instrumentId),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode scan payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses a scanned payload. It validates shape only; the
// code is checked against the instrument by the redemption guard.
func DecodePayload(raw string) (*ScanPayload, error) {
	var p ScanPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("invalid scan payload: %w", err)
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("invalid scan payload type %q", p.Type)
	}
	if p.InstrumentId == "" {
		return nil, fmt.Errorf("scan payload missing instrumentId")
	}
	if len(NormalizeCode(p.Code)) != CodeLength {
		return nil, fmt.Errorf("scan payload code must be %d characters", CodeLength)
	}
	return &p, nil
}
