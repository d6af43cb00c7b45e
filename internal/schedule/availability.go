package schedule

import "time"

// AvailableAt reports whether the schedule has an active working window
// covering the given instant. The working window is half-open
// [start, end); a configured break [breakStart, breakEnd) is excluded.
// Malformed input (missing bounds, break with only one end) degrades to
// unavailable rather than panicking.
func AvailableAt(ws WeeklySchedule, at time.Time) bool {
	day, ok := ws.Days[at.Weekday()]
	if !ok {
		return false
	}
	return day.coversMinute(MinutesOfDay(at))
}

func (d DayHours) coversMinute(minute int) bool {
	if !d.Active {
		return false
	}
	if d.Start == nil || d.End == nil {
		return false
	}
	if minute < *d.Start || minute >= *d.End {
		return false
	}
	if d.BreakStart != nil && d.BreakEnd != nil &&
		minute >= *d.BreakStart && minute < *d.BreakEnd {
		return false
	}
	return true
}
