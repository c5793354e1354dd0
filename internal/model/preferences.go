package model

// DefaultAutoConfirmThreshold is the confidence at and above which a
// candidate commits without asking the user. The boundary is inclusive.
const DefaultAutoConfirmThreshold = 0.90

// Preferences holds the per-user knobs the pipeline reads.
type Preferences struct {
	Personality          string  `json:"personality"`
	AutoConfirmThreshold float64 `json:"auto_confirm_threshold"`
	WeeklySummary        bool    `json:"weekly_summary"`
	DailySummary         bool    `json:"daily_summary"`
}

// DefaultPreferences returns the preferences used when a user has none saved.
func DefaultPreferences() Preferences {
	return Preferences{
		Personality:          "friendly",
		AutoConfirmThreshold: DefaultAutoConfirmThreshold,
		WeeklySummary:        true,
	}
}
