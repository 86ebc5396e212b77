package temporal

import (
	"fmt"
	"time"
)

// Relative describes ts as a distance from now ("5 minutes ago",
// "yesterday evening", "on March 3rd"). ts is rendered in now's location.
func Relative(ts, now time.Time) string {
	ts = ts.In(now.Location())
	diff := now.Sub(ts)

	if diff < time.Minute {
		return "just now"
	}

	if diff < time.Hour {
		return plural(int(diff/time.Minute), "minute") + " ago"
	}

	if sameDate(ts, now) {
		hours := int(diff / time.Hour)
		switch {
		case hours == 1:
			return "1 hour ago"
		case hours < 4:
			return plural(hours, "hour") + " ago"
		default:
			return "this " + TimeOfDay(ts)
		}
	}

	if sameDate(ts, now.AddDate(0, 0, -1)) {
		return "yesterday " + TimeOfDay(ts)
	}

	days := int(diff / (24 * time.Hour))
	if days < 7 {
		if days < 1 {
			days = 1
		}
		return plural(days, "day") + " ago"
	}

	return fmt.Sprintf("on %s %d%s", ts.Month(), ts.Day(), ordinal(ts.Day()))
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func ordinal(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
