package domain

import "time"

// RiskTier is a user's configured alert sensitivity level.
// The enumeration is closed: every tier must have an entry in
// tierThresholds, and vice versa.
type RiskTier string

const (
	TierHigh   RiskTier = "high"
	TierMedium RiskTier = "medium"
	TierLow    RiskTier = "low"

	// TierUnset means the user never configured a tier. It resolves to
	// the medium cutoff at read time and is a presentation default only.
	TierUnset RiskTier = ""
)

var tierThresholds = map[RiskTier]float64{
	TierHigh:   0.90,
	TierMedium: 0.70,
	TierLow:    0.50,
}

// Valid reports whether t is a known tier (unset counts as valid).
func (t RiskTier) Valid() bool {
	if t == TierUnset {
		return true
	}
	_, ok := tierThresholds[t]
	return ok
}

// Threshold resolves the tier to its numeric alert cutoff.
// An unset tier resolves to the medium cutoff.
func (t RiskTier) Threshold() float64 {
	if t == TierUnset {
		return tierThresholds[TierMedium]
	}
	return tierThresholds[t]
}

// User is an onboarded account holder with an alert policy.
type User struct {
	ID            string    `json:"id"`
	AccessToken   string    `json:"-"`
	ValidUntil    time.Time `json:"validUntil"`
	AccountRef    string    `json:"accountRef"`
	Notifications bool      `json:"notifications"`
	Tier          RiskTier  `json:"tier,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Active reports whether the user's access token is still valid.
func (u *User) Active(now time.Time) bool {
	return now.Before(u.ValidUntil)
}
