package clock

import "time"

// WindowType identifies one of the rolling usage windows.
type WindowType string

const (
	WindowHour  WindowType = "hour"
	WindowDay   WindowType = "day"
	WindowMonth WindowType = "month"
)

// WindowTypes lists every window in evaluation order.
var WindowTypes = []WindowType{WindowHour, WindowDay, WindowMonth}

// Retention returns how long a closed window of this type is kept before the
// sweeper may evict it.
func (w WindowType) Retention() time.Duration {
	switch w {
	case WindowHour:
		return 24 * time.Hour
	case WindowDay:
		return 7 * 24 * time.Hour
	case WindowMonth:
		return 3 * 31 * 24 * time.Hour
	default:
		return 0
	}
}

// WindowStart truncates t to the start of the window in the given location.
// A nil location means UTC.
func WindowStart(w WindowType, t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	switch w {
	case WindowHour:
		return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	case WindowDay:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	case WindowMonth:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return local
	}
}

// HourStart truncates t to the top of its hour.
func HourStart(t time.Time, loc *time.Location) time.Time {
	return WindowStart(WindowHour, t, loc)
}

// DayStart truncates t to local midnight.
func DayStart(t time.Time, loc *time.Location) time.Time {
	return WindowStart(WindowDay, t, loc)
}

// MonthStart truncates t to the first of its month.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	return WindowStart(WindowMonth, t, loc)
}
