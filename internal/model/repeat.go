package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRecurrence is returned when a recurrence configuration fails
// validation. It is surfaced synchronously to the caller that attempted the
// invalid mutation and is never silently coerced into a valid config.
var ErrInvalidRecurrence = errors.New("invalid recurrence config")

// Weekday numbers a day of the week 1=Monday .. 7=Sunday (ISO-8601).
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// String returns the short English name of the weekday.
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d-1]
}

// FromTime converts a time.Weekday (0=Sunday) to the ISO numbering used here.
func FromTime(d time.Weekday) Weekday {
	if d == time.Sunday {
		return Sunday
	}
	return Weekday(d)
}

// CustomRepeatConfig describes an interval-based or weekday-based repeat.
//
// The interval is normalized so Minutes < 60 and Hours < 24 (overflow rolls
// up). When SpecificDays is non-empty, occurrences fall only on those
// weekdays regardless of the interval. EndDate, when set, cuts the occurrence
// sequence off.
type CustomRepeatConfig struct {
	Minutes      int        `json:"minutes"`
	Hours        int        `json:"hours"`
	Days         int        `json:"days"`
	SpecificDays []Weekday  `json:"specificDays,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
}

// NewCustomRepeat builds a normalized, validated config. A zero interval with
// no specific days is rejected with [ErrInvalidRecurrence].
func NewCustomRepeat(minutes, hours, days int, specificDays []Weekday, endDate *time.Time) (*CustomRepeatConfig, error) {
	c := &CustomRepeatConfig{
		Minutes:      minutes,
		Hours:        hours,
		Days:         days,
		SpecificDays: specificDays,
		EndDate:      endDate,
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Normalize rolls interval overflow up: 90 minutes becomes 1 hour 30 minutes.
func (c *CustomRepeatConfig) Normalize() {
	c.Hours += c.Minutes / 60
	c.Minutes %= 60
	c.Days += c.Hours / 24
	c.Hours %= 24
}

// Validate rejects negative components, out-of-range weekdays, and the
// all-zero/no-days case.
func (c *CustomRepeatConfig) Validate() error {
	if c.Minutes < 0 || c.Hours < 0 || c.Days < 0 {
		return fmt.Errorf("%w: negative interval component", ErrInvalidRecurrence)
	}
	for _, d := range c.SpecificDays {
		if d < Monday || d > Sunday {
			return fmt.Errorf("%w: weekday %d out of range 1-7", ErrInvalidRecurrence, int(d))
		}
	}
	if c.Interval() == 0 && len(c.SpecificDays) == 0 {
		return fmt.Errorf("%w: zero interval and no specific days", ErrInvalidRecurrence)
	}
	return nil
}

// Interval returns the repeat interval as a duration. Zero when only
// SpecificDays drive the recurrence.
func (c *CustomRepeatConfig) Interval() time.Duration {
	return time.Duration(c.Days)*24*time.Hour +
		time.Duration(c.Hours)*time.Hour +
		time.Duration(c.Minutes)*time.Minute
}

// EquivalentStandard reports whether the config duplicates one of the
// standard repeat types. Callers use this as a non-fatal nudge towards the
// simpler type; the engine honors the custom config as given either way.
func (c *CustomRepeatConfig) EquivalentStandard() (RepeatType, bool) {
	if len(c.SpecificDays) != 0 || c.EndDate != nil {
		return "", false
	}
	if c.Minutes != 0 || c.Hours != 0 {
		return "", false
	}
	switch c.Days {
	case 1:
		return RepeatDaily, true
	case 7:
		return RepeatWeekly, true
	}
	return "", false
}

// Summary returns a human-readable description of the repeat, e.g.
// "Every 2 days on Mon, Wed". Display-only.
func (c *CustomRepeatConfig) Summary() string {
	var b strings.Builder
	b.WriteString("Every")

	var parts []string
	appendPart := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n == 1 {
			parts = append(parts, unit)
			return
		}
		parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
	}
	appendPart(c.Days, "day")
	appendPart(c.Hours, "hour")
	appendPart(c.Minutes, "minute")

	if len(parts) == 0 && len(c.SpecificDays) > 0 {
		parts = append(parts, "week")
	}
	b.WriteString(" ")
	b.WriteString(strings.Join(parts, " "))

	if len(c.SpecificDays) > 0 {
		names := make([]string, len(c.SpecificDays))
		for i, d := range c.SpecificDays {
			names[i] = d.String()
		}
		b.WriteString(" on ")
		b.WriteString(strings.Join(names, ", "))
	}
	if c.EndDate != nil {
		b.WriteString(" until ")
		b.WriteString(c.EndDate.Format("Jan 2, 2006"))
	}
	return b.String()
}

// RepeatSummary returns a display description of the reminder's recurrence.
func (r *Reminder) RepeatSummary() string {
	if r.RepeatType == RepeatCustom && r.CustomRepeat != nil {
		return r.CustomRepeat.Summary()
	}
	return r.RepeatType.String()
}
