package domain

import "time"

// DayLayout is the storage and display format of a calendar day.
const DayLayout = "2006-01-02"

// DayKey formats t's calendar day in t's own location.
func DayKey(t time.Time) string { return t.Format(DayLayout) }

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfISOWeek returns the Monday midnight of the ISO week containing t.
func StartOfISOWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// ParseDay parses a YYYY-MM-DD string as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, loc)
}
