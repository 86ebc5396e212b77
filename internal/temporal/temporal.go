// Package temporal turns timestamps into the human phrasing used in prompts.
// Every function is pure: callers pass the instant (and "now" where relevant)
// already converted to the user's location.
package temporal

import (
	"fmt"
	"strings"
	"time"
)

const (
	Morning   = "morning"
	Afternoon = "afternoon"
	Evening   = "evening"
	Night     = "night"

	Weekday = "weekday"
	Weekend = "weekend"
)

// Context is the detailed breakdown of a single instant
type Context struct {
	CurrentTime string // 12-hour clock, e.g. "03:04 PM"
	Date        string // e.g. "Friday, March 07, 2025"
	TimeOfDay   string
	DayType     string
	DayOfWeek   string // lowercase
	Hour24      int
	Month       string // lowercase
}

func TimeOfDay(ts time.Time) string {
	h := ts.Hour()
	switch {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 21:
		return Evening
	default:
		return Night
	}
}

func DayType(ts time.Time) string {
	switch ts.Weekday() {
	case time.Saturday, time.Sunday:
		return Weekend
	default:
		return Weekday
	}
}

func Detailed(ts time.Time) Context {
	return Context{
		CurrentTime: ts.Format("03:04 PM"),
		Date:        ts.Format("Monday, January 02, 2006"),
		TimeOfDay:   TimeOfDay(ts),
		DayType:     DayType(ts),
		DayOfWeek:   strings.ToLower(ts.Weekday().String()),
		Hour24:      ts.Hour(),
		Month:       strings.ToLower(ts.Month().String()),
	}
}

// String renders the sentence injected into prompts
func String(ts time.Time) string {
	c := Detailed(ts)
	return fmt.Sprintf("it's %s on %s. it's a %s %s.", c.CurrentTime, c.Date, c.DayType, c.TimeOfDay)
}

// Special returns the first matching situational note, or "".
func Special(ts time.Time) string {
	h := ts.Hour()
	day := ts.Weekday()

	if day == time.Friday && h >= 15 {
		return "it's friday afternoon - weekend vibes incoming!"
	}

	if day == time.Monday && h >= 6 && h < 12 {
		return "it's monday morning - fresh start to the week"
	}

	if h >= 23 || h < 3 {
		return "it's pretty late - might be time to wind down soon"
	}

	if DayType(ts) == Weekend && h >= 7 && h < 11 {
		return "it's a weekend morning - perfect for relaxed activities"
	}

	return ""
}
