package timer

import (
	"fmt"
	"time"
)

// ParseClock parses "HH:MM".
func ParseClock(clock string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time format (use HH:MM): %w", err)
	}
	return t.Hour(), t.Minute(), nil
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// NextDailyRun returns the next occurrence of clock after now, in now's
// location.
func NextDailyRun(now time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	next := at(now, hour, minute)
	if !next.After(now) {
		next = at(now.AddDate(0, 0, 1), hour, minute)
	}
	return next, nil
}

// NextIntervalRun returns now+interval kept inside the daily [from, until]
// range: runs that would fall before from are moved to from+interval,
// runs after until to from+interval on the next day.
func NextIntervalRun(now time.Time, interval time.Duration, from, until string) (time.Time, error) {
	if interval <= 0 {
		return time.Time{}, fmt.Errorf("interval must be positive, got %s", interval)
	}
	fh, fm, err := ParseClock(from)
	if err != nil {
		return time.Time{}, err
	}
	uh, um, err := ParseClock(until)
	if err != nil {
		return time.Time{}, err
	}

	start := at(now, fh, fm)
	end := at(now, uh, um)
	if !end.After(start) {
		return time.Time{}, fmt.Errorf("range %s-%s is empty", from, until)
	}

	next := now.Add(interval)
	switch {
	case next.Before(start.Add(interval)):
		next = start.Add(interval)
	case next.After(end):
		next = at(now.AddDate(0, 0, 1), fh, fm).Add(interval)
	}
	return next, nil
}
