// Package availability derives what a requester may see of a time-gated
// instrument or piece of content. Everything here is pure.
package availability

import (
	"time"

	"reward-ledger-go/internal/models"
)

// Gate is a time window plus the access rank required to use it.
type Gate struct {
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	RequiredRank int
}

// ForInstrument builds the gate of an instrument.
func ForInstrument(i *models.Instrument) Gate {
	return Gate{ValidFrom: i.ValidFrom, ValidUntil: i.ValidUntil, RequiredRank: i.RequiredRank}
}

// ForContent builds the gate of drop content.
func ForContent(c *models.GatedContent) Gate {
	return Gate{ValidFrom: c.ValidFrom, ValidUntil: c.ValidUntil, RequiredRank: c.RequiredRank}
}

// Evaluate computes the visibility of gate for a requester at now.
// Time-window checks come before the rank check: a closed window is missed
// for everyone and an unopened one counts down for everyone.
func Evaluate(gate Gate, requesterRank int, now time.Time) models.Visibility {
	if gate.ValidUntil != nil && now.After(*gate.ValidUntil) {
		return models.VisibilityMissed
	}
	if gate.ValidFrom != nil && now.Before(*gate.ValidFrom) {
		return models.VisibilityCountdown
	}
	if requesterRank < gate.RequiredRank {
		return models.VisibilityLocked
	}
	return models.VisibilityAvailable
}

// TimeRemaining returns the time until the window opens (countdown) or
// closes (open window). It is zero for missed gates and for open gates
// without an end.
func TimeRemaining(gate Gate, now time.Time) time.Duration {
	if gate.ValidFrom != nil && now.Before(*gate.ValidFrom) {
		return gate.ValidFrom.Sub(now)
	}
	if gate.ValidUntil != nil && !now.After(*gate.ValidUntil) {
		return gate.ValidUntil.Sub(now)
	}
	return 0
}
