package domain

import (
	"fmt"
	"strings"
	"time"
)

type RefreshFrequency string

const (
	FrequencyDaily      RefreshFrequency = "daily"
	FrequencyWeekly     RefreshFrequency = "weekly"
	FrequencyMonthly    RefreshFrequency = "monthly"
	FrequencyQuarterly  RefreshFrequency = "quarterly"
	FrequencyBiannually RefreshFrequency = "biannually"
	FrequencyYearly     RefreshFrequency = "yearly"
)

const day = 24 * time.Hour

var frequencyIntervals = map[RefreshFrequency]time.Duration{
	FrequencyDaily:      day,
	FrequencyWeekly:     7 * day,
	FrequencyMonthly:    30 * day,
	FrequencyQuarterly:  90 * day,
	FrequencyBiannually: 180 * day,
	FrequencyYearly:     365 * day,
}

// DefaultFrequency is used for documents that never had one stored.
const DefaultFrequency = FrequencyMonthly

func ParseRefreshFrequency(s string) (RefreshFrequency, error) {
	f := RefreshFrequency(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := frequencyIntervals[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return f, nil
}

func (f RefreshFrequency) Valid() bool {
	_, ok := frequencyIntervals[f]
	return ok
}

// Interval returns the fixed duration between refreshes. Unknown values
// fall back to the default frequency.
func (f RefreshFrequency) Interval() time.Duration {
	if d, ok := frequencyIntervals[f]; ok {
		return d
	}
	return frequencyIntervals[DefaultFrequency]
}

func (f RefreshFrequency) Next(from time.Time) time.Time {
	return from.Add(f.Interval())
}

// RefreshSchedule holds the refresh timing state persisted on a document.
type RefreshSchedule struct {
	Enabled       bool
	Frequency     RefreshFrequency
	LastRefreshAt *time.Time
	NextRefreshAt *time.Time
}

// Reschedule recomputes NextRefreshAt: last refresh plus the interval while
// enabled, nil while disabled. A document never refreshed is measured from now.
func (s *RefreshSchedule) Reschedule(now time.Time) {
	if !s.Enabled {
		s.NextRefreshAt = nil
		return
	}
	base := now
	if s.LastRefreshAt != nil {
		base = *s.LastRefreshAt
	}
	next := s.Frequency.Next(base)
	s.NextRefreshAt = &next
}

// MarkRefreshed records a completed refresh at now.
func (s *RefreshSchedule) MarkRefreshed(now time.Time) {
	s.LastRefreshAt = &now
	s.Reschedule(now)
}
