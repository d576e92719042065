package mimir

import "time"

func maxDate(a time.Time, b ...time.Time) time.Time {
	for _, v := range b {
		if v.After(a) {
			a = v
		}
	}

	return a
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayLabel names the calendar day of t relative to now.
func dayLabel(day, now time.Time) string {
	today := startOfDay(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format(time.DateOnly)
	}
}
