// Package domain contains the core data structures and domain logic for the application.
package domain

import (
	"math"
	"time"
)

// AverageMonthDays is the mean length of a Gregorian month, used to turn a
// lookback expressed in months into a duration.
const AverageMonthDays = 30.4375

const dateLayout = "2006-01-02"

// TimeWindow is the lookback range over which activity is counted.
// Start and End are calendar days in UTC with Start <= End.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow computes the window ending on the calendar day of now and
// starting months*AverageMonthDays earlier, truncated to midnight UTC.
func NewTimeWindow(now time.Time, months int) TimeWindow {
	if months < 0 {
		months = 0
	}
	now = now.UTC()
	offset := time.Duration(math.Round(float64(months) * AverageMonthDays * float64(24*time.Hour)))
	start := truncateDay(now.Add(-offset))
	end := truncateDay(now)
	return TimeWindow{Start: start, End: end}
}

// StartEpochSeconds returns the inclusive lower bound of the window in Unix seconds.
func (w TimeWindow) StartEpochSeconds() int64 {
	return w.Start.Unix()
}

// StartDate formats the first day of the window as YYYY-MM-DD.
func (w TimeWindow) StartDate() string {
	return w.Start.Format(dateLayout)
}

// EndDate formats the last day of the window as YYYY-MM-DD.
func (w TimeWindow) EndDate() string {
	return w.End.Format(dateLayout)
}

// DateRange returns the window in the YYYY-MM-DD..YYYY-MM-DD form used by search qualifiers.
func (w TimeWindow) DateRange() string {
	return w.StartDate() + ".." + w.EndDate()
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
