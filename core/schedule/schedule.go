package schedule

import (
	"time"

	"github.com/jinzhu/now"
	"github.com/pkg/errors"
)

type Frequency string

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

var (
	Frequencies = []Frequency{Daily, Weekly, Monthly, Quarterly, Yearly}

	ErrUnknownFrequency = errors.New("unknown frequency")
)

func (f Frequency) IsValid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// Schedule is the recurrence of a report definition.
// AnchorDay and AnchorMonth remember the first run so that clamped months (Jan 31 -> Feb 28) do not drift.
type Schedule struct {
	Frequency   Frequency  `json:"frequency"`
	NextRunAt   time.Time  `json:"next_run_at"`
	LastRunAt   time.Time  `json:"last_run_at,omitempty"`
	AnchorDay   int        `json:"anchor_day"`
	AnchorMonth time.Month `json:"anchor_month"`
	Enabled     bool       `json:"enabled"`
}

// New starts a schedule whose first run is at `first`.
func New(freq Frequency, first time.Time, enabled bool) (Schedule, error) {
	if !freq.IsValid() {
		return Schedule{}, errors.Wrapf(ErrUnknownFrequency, "%q", freq)
	}
	return Schedule{
		Frequency:   freq,
		NextRunAt:   first,
		AnchorDay:   first.Day(),
		AnchorMonth: first.Month(),
		Enabled:     enabled,
	}, nil
}

// IsDue reports whether the schedule should run at t.
func (s Schedule) IsDue(t time.Time) bool {
	return s.Enabled && !s.NextRunAt.IsZero() && !s.NextRunAt.After(t)
}

// Advance moves the schedule one period past its previous NextRunAt (never from the current time).
func (s Schedule) Advance(ranAt time.Time) (Schedule, error) {
	next, err := Next(s.Frequency, s.NextRunAt, s.AnchorDay, s.AnchorMonth)
	if err != nil {
		return s, err
	}
	s.NextRunAt = next
	s.LastRunAt = ranAt
	return s, nil
}

// Next computes the run following prev. Time of day and location are preserved.
// Monthly, quarterly and yearly runs land on anchorDay (and anchorMonth for yearly), clamped to the month length.
// A zero anchor falls back to prev.
func Next(freq Frequency, prev time.Time, anchorDay int, anchorMonth time.Month) (time.Time, error) {
	if anchorDay <= 0 || anchorDay > 31 {
		anchorDay = prev.Day()
	}
	if anchorMonth < time.January || anchorMonth > time.December {
		anchorMonth = prev.Month()
	}

	switch freq {
	case Daily:
		return prev.AddDate(0, 0, 1), nil
	case Weekly:
		return prev.AddDate(0, 0, 7), nil
	case Monthly:
		return addMonths(prev, 1, anchorDay), nil
	case Quarterly:
		return addMonths(prev, 3, anchorDay), nil
	case Yearly:
		first := time.Date(prev.Year()+1, anchorMonth, 1, 0, 0, 0, 0, prev.Location())
		return onDay(first, anchorDay, prev), nil
	}
	return time.Time{}, errors.Wrapf(ErrUnknownFrequency, "%q", freq)
}

func addMonths(prev time.Time, months, anchorDay int) time.Time {
	first := now.With(prev).BeginningOfMonth().AddDate(0, months, 0)
	return onDay(first, anchorDay, prev)
}

// onDay places the clock of `clock` on `day` of the month starting at `first`, clamped to the month length.
func onDay(first time.Time, day int, clock time.Time) time.Time {
	if last := now.With(first).EndOfMonth().Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
}
