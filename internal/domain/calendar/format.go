package calendar

import (
	"fmt"
	"time"
)

// DurationLabel renders the length of an event: "45 mins", "2 hours", "1h 30m".
// An end before the start yields "".
func DurationLabel(start, end time.Time) string {
	if end.Before(start) {
		return ""
	}
	mins := int(end.Sub(start) / time.Minute)
	hours, rem := mins/60, mins%60
	switch {
	case hours == 0:
		return fmt.Sprintf("%d %s", rem, plural(rem, "min"))
	case rem == 0:
		return fmt.Sprintf("%d %s", hours, plural(hours, "hour"))
	}
	return fmt.Sprintf("%dh %dm", hours, rem)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// TimeRangeLabel renders "2:30 PM - 3:30 PM" in loc.
func TimeRangeLabel(start, end time.Time, loc *time.Location) string {
	return start.In(loc).Format("3:04 PM") + " - " + end.In(loc).Format("3:04 PM")
}

// RelativeDayLabel returns "Today", "Tomorrow", or a short date such as
// "Mon, Jan 20", comparing calendar days in loc.
func RelativeDayLabel(t, now time.Time, loc *time.Location) string {
	day, today := DateOf(t, loc), DateOf(now, loc)
	switch day {
	case today:
		return "Today"
	case today.AddDays(1):
		return "Tomorrow"
	}
	return t.In(loc).Format("Mon, Jan 2")
}
