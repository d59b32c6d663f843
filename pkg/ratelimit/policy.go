package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Tier is the account verification level. Each tier selects a row of the
// exchange's published limit table.
type Tier string

const (
	TierStarter      = Tier("Starter")
	TierIntermediate = Tier("Intermediate")
	TierPro          = Tier("Pro")
)

// UnknownTierError is returned for a verification tier string that does not
// match any published tier. There is no silent fallback: a misconfigured tier
// would otherwise run with the wrong quota table and trip exchange-side bans.
type UnknownTierError struct {
	Value string
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown verification tier %q (expected Starter, Intermediate or Pro)", e.Value)
}

// ParseTier parses a configuration tier string, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starter":
		return TierStarter, nil
	case "intermediate":
		return TierIntermediate, nil
	case "pro":
		return TierPro, nil
	}

	return "", &UnknownTierError{Value: s}
}

// Policy holds the limit thresholds and decay rates of one tier.
// Decay rates are per DefaultDecayInterval. The open-order limit has no decay
// rate: order slots are released explicitly, not by time.
type Policy struct {
	Tier Tier

	CommonLimit     float64
	CommonDecayRate float64

	OrderLimit int

	CancelLimit     float64
	CancelDecayRate float64
}

// PolicyForTier returns the exchange's published limit table row for a tier.
func PolicyForTier(tier Tier) Policy {
	switch tier {
	case TierIntermediate:
		return Policy{
			Tier:            TierIntermediate,
			CommonLimit:     20,
			CommonDecayRate: 0.5,
			OrderLimit:      80,
			CancelLimit:     125,
			CancelDecayRate: 2.34,
		}

	case TierPro:
		return Policy{
			Tier:            TierPro,
			CommonLimit:     20,
			CommonDecayRate: 1.0,
			OrderLimit:      225,
			CancelLimit:     180,
			CancelDecayRate: 3.75,
		}

	default:
		return Policy{
			Tier:            TierStarter,
			CommonLimit:     15,
			CommonDecayRate: 0.33,
			OrderLimit:      60,
			CancelLimit:     60,
			CancelDecayRate: 1.0,
		}
	}
}

// CancelWeight returns the rate-limit cost of canceling an order of the given
// age. Canceling a fresh order is expensive; a very old one is free.
func CancelWeight(age time.Duration) float64 {
	switch {
	case age < 5*time.Second:
		return 8
	case age < 10*time.Second:
		return 6
	case age < 15*time.Second:
		return 5
	case age < 45*time.Second:
		return 4
	case age < 90*time.Second:
		return 2
	case age < 900*time.Second:
		return 1
	}

	return 0
}
