// Package slots defines the appointment grid shared by the portal and the API.
package slots

import (
	"fmt"
	"time"
)

const (
	// DayLayout is the wire format of a tenant preferred day.
	DayLayout = "2006-01-02"
	// TimeLayout is the wire format of a slot start time.
	TimeLayout = "15:04"

	// Interval between consecutive slot starts.
	Interval = 30 * time.Minute

	openingHour = 8
	closingHour = 18
)

var grid = buildGrid()

func buildGrid() []string {
	var out []string
	start := time.Date(2000, 1, 1, openingHour, 0, 0, 0, time.UTC)
	end := time.Date(2000, 1, 1, closingHour, 0, 0, 0, time.UTC)
	for t := start; t.Before(end); t = t.Add(Interval) {
		out = append(out, t.Format(TimeLayout))
	}
	return out
}

// Grid returns the half-hour slot starts from 08:00 to 17:30.
func Grid() []string {
	out := make([]string, len(grid))
	copy(out, grid)
	return out
}

// OnGrid reports whether hhmm is a slot start.
func OnGrid(hhmm string) bool {
	for _, s := range grid {
		if s == hhmm {
			return true
		}
	}
	return false
}

// ParseDay parses a YYYY-MM-DD day.
func ParseDay(day string) (time.Time, error) {
	return time.Parse(DayLayout, day)
}

// Combine joins a day and a slot into one instant in loc.
func Combine(day, hhmm string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	at, err := time.ParseInLocation(DayLayout+" "+TimeLayout, day+" "+hhmm, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("combine %q %q: %w", day, hhmm, err)
	}
	return at, nil
}

// Contains reports whether day is one of days.
func Contains(days []string, day string) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
