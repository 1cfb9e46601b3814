package review

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"Monday": time.Monday, "Tuesday": time.Tuesday, "Wednesday": time.Wednesday,
	"Thursday": time.Thursday, "Friday": time.Friday, "Saturday": time.Saturday,
	"Sunday": time.Sunday,
}

// ParseDate converts a rating date into epoch seconds at noon in loc.
//
// Absolute dates look like "Jul 12, 2015". Relative dates ("Today",
// "Yesterday", "3 hours ago", "A moment ago", "Tuesday at 2:15am") are
// resolved against anchor, the time the page was captured.
func ParseDate(raw string, anchor time.Time, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.Local
	}
	raw = strings.TrimSpace(raw)

	if day, comma, ok := strings.Cut(raw, ","); ok {
		return absoluteDate(raw, day, comma, loc)
	}

	delta, err := relativeDays(strings.TrimSpace(strings.SplitN(raw, " at ", 2)[0]), anchor.In(loc))
	if err != nil {
		return 0, err
	}
	a := anchor.In(loc)
	return time.Date(a.Year(), a.Month(), a.Day()-delta, 12, 0, 0, 0, loc).Unix(), nil
}

func absoluteDate(raw, monthDay, yearPart string, loc *time.Location) (int64, error) {
	year, err := strconv.Atoi(strings.TrimSpace(yearPart))
	if err != nil {
		return 0, fmt.Errorf("date %q: year: %w", raw, err)
	}
	if len(monthDay) < 5 {
		return 0, fmt.Errorf("date %q: too short", raw)
	}
	month, ok := months[monthDay[:3]]
	if !ok {
		return 0, fmt.Errorf("date %q: unknown month", raw)
	}
	day, err := strconv.Atoi(strings.TrimSpace(monthDay[4:]))
	if err != nil {
		return 0, fmt.Errorf("date %q: day: %w", raw, err)
	}
	return time.Date(year, month, day, 12, 0, 0, 0, loc).Unix(), nil
}

// relativeDays returns how many days before anchor the phrase refers to.
func relativeDays(phrase string, anchor time.Time) (int, error) {
	switch {
	case phrase == "Yesterday":
		return 1, nil
	case phrase == "Today", phrase == "A moment ago",
		strings.HasSuffix(phrase, "minute ago"), strings.HasSuffix(phrase, "minutes ago"),
		strings.HasSuffix(phrase, "hour ago"), strings.HasSuffix(phrase, "hours ago"):
		return 0, nil
	}
	wd, ok := weekdays[phrase]
	if !ok {
		return 0, fmt.Errorf("unrecognised relative date %q", phrase)
	}
	return (int(anchor.Weekday()) - int(wd) + 7) % 7, nil
}
