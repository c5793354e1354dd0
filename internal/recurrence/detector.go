// Package recurrence detects repeating transactions from historical entries.
// Detection is pure statistics over an entry slice; it never touches storage
// and produces no side effects.
package recurrence

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/text"
)

// Options tunes detection. Zero values fall back to the defaults.
type Options struct {
	// MinOccurrences is the smallest group size considered.
	MinOccurrences int
	// MinConfidence drops weaker results from the output.
	MinConfidence float64
}

const (
	defaultMinOccurrences = 2
	defaultMinConfidence  = 0.5

	// occurrenceSaturation is the group size at which the occurrence factor
	// maxes out.
	occurrenceSaturation = 5

	// amountTolerance is the relative band within which a new entry's amount
	// still matches a known rule.
	amountTolerance = 0.15

	// maxMonthDay keeps month arithmetic away from 29/30/31 edge cases.
	maxMonthDay = 28
)

// Confidence factor weights. They sum to 1.
const (
	weightOccurrences = 0.3
	weightAmount      = 0.2
	weightModalDay    = 0.25
	weightInterval    = 0.25
)

// interval buckets in days, inclusive.
var buckets = []struct {
	frequency model.Frequency
	min       float64
	max       float64
}{
	{model.FrequencyDaily, 1, 1},
	{model.FrequencyWeekly, 6, 8},
	{model.FrequencyBiweekly, 13, 17},
	{model.FrequencyMonthly, 28, 33},
	{model.FrequencyBimonthly, 58, 65},
	{model.FrequencyQuarterly, 88, 95},
	{model.FrequencySemiannual, 175, 190},
	{model.FrequencyAnnual, 360, 370},
}

// Detect finds recurring patterns in a user's entries. The input need not be
// sorted. Results come back strongest first.
func Detect(entries []model.LedgerEntry, opts Options) []model.RecurringPattern {
	if opts.MinOccurrences <= 0 {
		opts.MinOccurrences = defaultMinOccurrences
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaultMinConfidence
	}

	groups := groupBySignature(entries)

	var patterns []model.RecurringPattern
	for _, group := range groups {
		if len(group.entries) < opts.MinOccurrences {
			continue
		}
		pattern, ok := analyze(group)
		if !ok || pattern.Confidence < opts.MinConfidence {
			continue
		}
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})
	return patterns
}

type signatureGroup struct {
	keywords string
	kind     model.TransactionKind
	entries  []model.LedgerEntry
}

func groupBySignature(entries []model.LedgerEntry) []signatureGroup {
	type key struct {
		keywords string
		kind     model.TransactionKind
	}

	index := map[key]int{}
	var groups []signatureGroup

	for _, entry := range entries {
		keywords := text.Signature(entry.Description)
		if keywords == "" {
			continue
		}
		k := key{keywords, entry.Kind}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, signatureGroup{keywords: keywords, kind: entry.Kind})
		}
		groups[i].entries = append(groups[i].entries, entry)
	}
	return groups
}

func analyze(group signatureGroup) (model.RecurringPattern, bool) {
	entries := append([]model.LedgerEntry(nil), group.entries...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})

	avg, minAmt, maxAmt, spread := amountStats(entries)

	intervals := dayIntervals(entries)
	meanInterval := mean(intervals)

	frequency, ok := classifyFrequency(meanInterval)
	if !ok {
		return model.RecurringPattern{}, false
	}

	modalDay, modalWeekday, modalShare := modalDayStats(entries, frequency)

	canonical := float64(frequency.CanonicalIntervalDays())
	meanDev := meanDeviation(intervals, canonical)

	confidence := weightOccurrences*clamp01(float64(len(entries))/occurrenceSaturation) +
		weightAmount*clamp01(1-spread) +
		weightModalDay*clamp01(modalShare) +
		weightInterval*clamp01(1-meanDev/canonical)

	last := entries[len(entries)-1]
	pattern := model.RecurringPattern{
		Description:    last.Description,
		Keywords:       group.keywords,
		Kind:           group.kind,
		Frequency:      frequency,
		AvgAmount:      avg,
		MinAmount:      minAmt,
		MaxAmount:      maxAmt,
		CategoryID:     last.CategoryID,
		Occurrences:    len(entries),
		LastOccurrence: last.Date,
		NextExpected:   nextExpected(last.Date, frequency),
		Confidence:     confidence,
	}
	if frequency == model.FrequencyMonthly {
		pattern.DayOfMonth = modalDay
	}
	if frequency == model.FrequencyWeekly || frequency == model.FrequencyBiweekly {
		pattern.Weekday = modalWeekday
	}
	return pattern, true
}

func amountStats(entries []model.LedgerEntry) (avg, minAmt, maxAmt decimal.Decimal, spread float64) {
	minAmt = entries[0].Amount
	maxAmt = entries[0].Amount
	sum := decimal.Zero

	for _, e := range entries {
		sum = sum.Add(e.Amount)
		if e.Amount.LessThan(minAmt) {
			minAmt = e.Amount
		}
		if e.Amount.GreaterThan(maxAmt) {
			maxAmt = e.Amount
		}
	}

	avg = sum.Div(decimal.NewFromInt(int64(len(entries))))
	if avg.IsPositive() {
		spread, _ = maxAmt.Sub(minAmt).Div(avg).Float64()
	}
	return avg, minAmt, maxAmt, spread
}

func dayIntervals(sorted []model.LedgerEntry) []float64 {
	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		days := sorted[i].Date.Sub(sorted[i-1].Date).Hours() / 24
		intervals = append(intervals, days)
	}
	return intervals
}

func classifyFrequency(meanInterval float64) (model.Frequency, bool) {
	for _, b := range buckets {
		if meanInterval >= b.min && meanInterval <= b.max {
			return b.frequency, true
		}
	}
	return "", false
}

// modalDayStats finds the most common day-of-month and weekday and the share
// of occurrences on the modal value relevant to the frequency.
func modalDayStats(entries []model.LedgerEntry, frequency model.Frequency) (int, time.Weekday, float64) {
	dayCounts := map[int]int{}
	weekdayCounts := map[time.Weekday]int{}
	for _, e := range entries {
		dayCounts[e.Date.Day()]++
		weekdayCounts[e.Date.Weekday()]++
	}

	modalDay, modalDayCount := 0, 0
	for day, n := range dayCounts {
		if n > modalDayCount || (n == modalDayCount && day < modalDay) {
			modalDay, modalDayCount = day, n
		}
	}

	modalWeekday, modalWeekdayCount := time.Sunday, 0
	for wd, n := range weekdayCounts {
		if n > modalWeekdayCount || (n == modalWeekdayCount && wd < modalWeekday) {
			modalWeekday, modalWeekdayCount = wd, n
		}
	}

	count := modalDayCount
	if frequency == model.FrequencyWeekly || frequency == model.FrequencyBiweekly {
		count = modalWeekdayCount
	}
	return modalDay, modalWeekday, float64(count) / float64(len(entries))
}

// nextExpected advances the last occurrence by one canonical interval.
// Month-based frequencies clamp the day so February and 30-day months never
// shift the cadence.
func nextExpected(last time.Time, frequency model.Frequency) time.Time {
	months := 0
	switch frequency {
	case model.FrequencyMonthly:
		months = 1
	case model.FrequencyBimonthly:
		months = 2
	case model.FrequencyQuarterly:
		months = 3
	case model.FrequencySemiannual:
		months = 6
	case model.FrequencyAnnual:
		months = 12
	}

	if months == 0 {
		return last.AddDate(0, 0, frequency.CanonicalIntervalDays())
	}

	day := last.Day()
	if day > maxMonthDay {
		day = maxMonthDay
	}
	anchored := time.Date(last.Year(), last.Month(), day,
		last.Hour(), last.Minute(), 0, 0, last.Location())
	return anchored.AddDate(0, months, 0)
}

// MatchEntry reports whether a new entry looks like an occurrence of a known
// rule: same kind, overlapping keyword tokens and an amount within tolerance
// of the rule's average.
func MatchEntry(entry *model.LedgerEntry, rule *model.RecurringPattern) bool {
	if entry.Kind != rule.Kind {
		return false
	}
	if !tokensOverlap(text.Signature(entry.Description), rule.Keywords) {
		return false
	}
	if !rule.AvgAmount.IsPositive() {
		return false
	}

	diff, _ := entry.Amount.Sub(rule.AvgAmount).Abs().Div(rule.AvgAmount).Float64()
	return diff <= amountTolerance
}

// tokensOverlap reports whether either signature contains every token of the
// other.
func tokensOverlap(a, b string) bool {
	return contains(a, b) || contains(b, a)
}

func contains(haystack, needle string) bool {
	tokens := text.Tokens(needle)
	if len(tokens) == 0 {
		return false
	}
	set := map[string]struct{}{}
	for _, tok := range text.Tokens(haystack) {
		set[tok] = struct{}{}
	}
	for _, tok := range tokens {
		if _, ok := set[tok]; !ok {
			return false
		}
	}
	return true
}

// Forecast returns the rules whose next expected occurrence falls inside the
// calendar month containing ref.
func Forecast(rules []model.RecurringPattern, ref time.Time) []model.RecurringPattern {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	end := start.AddDate(0, 1, 0)

	var due []model.RecurringPattern
	for _, rule := range rules {
		next := rule.NextExpected.In(ref.Location())
		if !next.Before(start) && next.Before(end) {
			due = append(due, rule)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextExpected.Before(due[j].NextExpected)
	})
	return due
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanDeviation(values []float64, center float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - center
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(values))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
