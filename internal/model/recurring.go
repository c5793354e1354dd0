package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency classifies the cadence of a recurring transaction.
type Frequency string

const (
	// FrequencyDaily repeats every day.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly repeats every week.
	FrequencyWeekly Frequency = "weekly"
	// FrequencyBiweekly repeats every two weeks.
	FrequencyBiweekly Frequency = "biweekly"
	// FrequencyMonthly repeats every month.
	FrequencyMonthly Frequency = "monthly"
	// FrequencyBimonthly repeats every two months.
	FrequencyBimonthly Frequency = "bimonthly"
	// FrequencyQuarterly repeats every quarter.
	FrequencyQuarterly Frequency = "quarterly"
	// FrequencySemiannual repeats twice a year.
	FrequencySemiannual Frequency = "semiannual"
	// FrequencyAnnual repeats once a year.
	FrequencyAnnual Frequency = "annual"
)

// CanonicalIntervalDays returns the nominal day count for the frequency.
func (f Frequency) CanonicalIntervalDays() int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyWeekly:
		return 7
	case FrequencyBiweekly:
		return 15
	case FrequencyMonthly:
		return 30
	case FrequencyBimonthly:
		return 60
	case FrequencyQuarterly:
		return 90
	case FrequencySemiannual:
		return 180
	case FrequencyAnnual:
		return 365
	}
	return 30
}

// RecurringPattern is the output of recurrence detection. It is derived from
// historical entries and is not authoritative until promoted to a persisted
// recurring rule.
type RecurringPattern struct {
	LastOccurrence time.Time
	NextExpected   time.Time
	Description    string
	Keywords       string
	Kind           TransactionKind
	Frequency      Frequency
	AvgAmount      decimal.Decimal
	MinAmount      decimal.Decimal
	MaxAmount      decimal.Decimal
	CategoryID     int64
	Occurrences    int
	DayOfMonth     int          // set for monthly patterns
	Weekday        time.Weekday // set for weekly patterns
	Confidence     float64
}
