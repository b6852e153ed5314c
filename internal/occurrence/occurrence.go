// Package occurrence computes the next concrete firing instants for a
// reminder. All functions are pure: identical inputs yield identical outputs,
// and every returned instant is strictly after the supplied reference time.
package occurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/njoerd114/remindcore/internal/model"
)

// maxSteps bounds the occurrence-date search so a pathological input can
// never spin the calculator. Large enough for several years of minutely
// custom intervals to pass an endDate check.
const maxSteps = 100_000

// Firing is one concrete trigger instant. SlotID is empty for single-time
// reminders and for snooze firings.
type Firing struct {
	At     time.Time
	SlotID string
}

// NextOccurrence returns the earliest next firing strictly after now, or nil
// when the reminder has no further occurrences. A reminder whose recurrence
// configuration is malformed yields [model.ErrInvalidRecurrence] (wrapped)
// rather than silently scheduling nothing.
func NextOccurrence(r *model.Reminder, now time.Time) (*Firing, error) {
	firings, err := NextFirings(r, now)
	if err != nil {
		return nil, err
	}
	if len(firings) == 0 {
		return nil, nil
	}
	min := firings[0]
	for _, f := range firings[1:] {
		if f.At.Before(min.At) {
			min = f
		}
	}
	return &min, nil
}

// NextFirings returns every firing the scheduler should hold an OS trigger
// for: one per pending slot on the next occurrence date, or a single firing
// for slot-less reminders. An empty slice means no further occurrences.
//
// A snoozedUntil instant in the future overrides the computed result for
// exactly one firing; the fired-trigger handler clears it once consumed.
func NextFirings(r *model.Reminder, now time.Time) ([]Firing, error) {
	if r.SnoozedUntil != nil && r.SnoozedUntil.After(now) {
		return []Firing{{At: *r.SnoozedUntil}}, nil
	}

	if r.RepeatType == model.RepeatCustom && r.CustomRepeat == nil {
		return nil, fmt.Errorf("%w: reminder %s is custom with no config", model.ErrInvalidRecurrence, r.ID)
	}

	if len(r.TimeSlots) == 0 {
		f, err := nextSingle(r, now)
		if err != nil || f == nil {
			return nil, err
		}
		return []Firing{*f}, nil
	}
	return nextSlotFirings(r, now)
}

// nextSingle handles reminders without time slots: the anchor instant itself
// is stepped forward until it passes now.
func nextSingle(r *model.Reminder, now time.Time) (*Firing, error) {
	t := r.ScheduledTime

	switch r.RepeatType {
	case model.RepeatNone:
		if t.After(now) {
			return &Firing{At: t}, nil
		}
		return nil, nil

	case model.RepeatDaily, model.RepeatWeekly, model.RepeatMonthly:
		for steps := 0; !t.After(now); steps++ {
			if steps > maxSteps {
				return nil, fmt.Errorf("occurrence search for reminder %s exceeded %d steps", r.ID, maxSteps)
			}
			t = stepStandard(t, r.RepeatType)
		}
		return &Firing{At: t}, nil

	case model.RepeatCustom:
		return nextCustom(r, now)
	}
	return nil, fmt.Errorf("%w: reminder %s has repeat type %q", model.ErrInvalidRecurrence, r.ID, r.RepeatType)
}

// nextCustom advances a slot-less custom reminder: weekday-constrained when
// SpecificDays is set, otherwise by the normalized interval.
func nextCustom(r *model.Reminder, now time.Time) (*Firing, error) {
	cfg := r.CustomRepeat

	if len(cfg.SpecificDays) > 0 {
		at, ok := nextWeekdayInstant(r.ScheduledTime, cfg, now)
		if !ok {
			return nil, nil
		}
		return &Firing{At: at}, nil
	}

	step := cfg.Interval()
	t := r.ScheduledTime
	if !t.After(now) {
		// Jump straight past now instead of looping minute intervals
		// across months of elapsed downtime.
		elapsed := now.Sub(t)
		t = t.Add(step * time.Duration(elapsed/step+1))
	}
	if cfg.EndDate != nil && t.After(*cfg.EndDate) {
		return nil, nil
	}
	return &Firing{At: t}, nil
}

// nextWeekdayInstant finds the first instant at anchor's time-of-day, on a
// configured weekday, strictly after now and not past the end date. The
// weekday set dominates the interval, so the search never needs to scan more
// than one week plus the anchor lead-in.
func nextWeekdayInstant(anchor time.Time, cfg *model.CustomRepeatConfig, now time.Time) (time.Time, bool) {
	allowed := make(map[model.Weekday]bool, len(cfg.SpecificDays))
	for _, d := range cfg.SpecificDays {
		allowed[d] = true
	}

	day := anchor
	if now.After(anchor) {
		day = anchor.AddDate(0, 0, int(now.Sub(anchor)/(24*time.Hour)))
	}
	for i := 0; i < 9; i++ {
		candidate := day.AddDate(0, 0, i)
		if !allowed[model.FromTime(candidate.Weekday())] {
			continue
		}
		if !candidate.After(now) {
			continue
		}
		if cfg.EndDate != nil && candidate.After(*cfg.EndDate) {
			return time.Time{}, false
		}
		return candidate, true
	}
	return time.Time{}, false
}

// nextSlotFirings finds the next occurrence date per the repeat rule and
// returns a firing for every pending slot still ahead of now on that date.
func nextSlotFirings(r *model.Reminder, now time.Time) ([]Firing, error) {
	// A fully-completed cycle on a repeating reminder is evaluated as the
	// next cycle (the handler resets slot statuses when it persists the
	// advance; this keeps the calculator correct in between).
	ignoreStatus := false
	if r.AllSlotsCompleted() {
		if !r.Repeating() {
			return nil, nil
		}
		ignoreStatus = true
	}

	date := r.ScheduledTime
	for steps := 0; ; steps++ {
		if steps > maxSteps {
			return nil, fmt.Errorf("occurrence search for reminder %s exceeded %d steps", r.ID, maxSteps)
		}

		if end := endDate(r); end != nil && date.After(*end) {
			return nil, nil
		}

		if dateAllowed(r, date) {
			firings := slotFiringsOn(r, date, now, ignoreStatus)
			if len(firings) > 0 {
				return firings, nil
			}
		}

		next, ok := nextDate(r, date)
		if !ok {
			return nil, nil
		}
		date = next
	}
}

// slotFiringsOn collects the pending-slot instants on the given occurrence
// date that are still strictly after now, earliest first.
func slotFiringsOn(r *model.Reminder, date, now time.Time, ignoreStatus bool) []Firing {
	var firings []Firing
	for _, s := range r.TimeSlots {
		if !ignoreStatus && s.Status != model.SlotPending {
			continue
		}
		at := s.Time.On(date)
		if at.After(now) {
			firings = append(firings, Firing{At: at, SlotID: s.ID})
		}
	}
	sort.Slice(firings, func(i, j int) bool { return firings[i].At.Before(firings[j].At) })
	return firings
}

// nextDate advances the occurrence date by one repeat period. ok is false for
// one-shot reminders, which have a single occurrence date.
func nextDate(r *model.Reminder, date time.Time) (time.Time, bool) {
	switch r.RepeatType {
	case model.RepeatNone:
		return time.Time{}, false
	case model.RepeatDaily, model.RepeatWeekly, model.RepeatMonthly:
		return stepStandard(date, r.RepeatType), true
	case model.RepeatCustom:
		cfg := r.CustomRepeat
		if len(cfg.SpecificDays) > 0 {
			allowed := make(map[model.Weekday]bool, len(cfg.SpecificDays))
			for _, d := range cfg.SpecificDays {
				allowed[d] = true
			}
			for i := 1; i <= 7; i++ {
				candidate := date.AddDate(0, 0, i)
				if allowed[model.FromTime(candidate.Weekday())] {
					return candidate, true
				}
			}
			return time.Time{}, false
		}
		step := cfg.Interval()
		if step < 24*time.Hour {
			// Sub-day intervals with slots still advance date-wise:
			// slots define the times within each occurrence day.
			step = 24 * time.Hour
		}
		return date.Add(step), true
	}
	return time.Time{}, false
}

// stepStandard applies one daily/weekly/monthly calendar step. Monthly uses
// AddDate, so month-length overflow normalizes the way standard calendar
// addition does (Jan 31 + 1 month lands in early March).
func stepStandard(t time.Time, rt model.RepeatType) time.Time {
	switch rt {
	case model.RepeatDaily:
		return t.AddDate(0, 0, 1)
	case model.RepeatWeekly:
		return t.AddDate(0, 0, 7)
	case model.RepeatMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t
}

// dateAllowed applies the weekday constraint of a weekday-based custom
// repeat to a candidate occurrence date. All other repeats allow every date
// their stepping produces.
func dateAllowed(r *model.Reminder, date time.Time) bool {
	if r.RepeatType != model.RepeatCustom || r.CustomRepeat == nil {
		return true
	}
	days := r.CustomRepeat.SpecificDays
	if len(days) == 0 {
		return true
	}
	wd := model.FromTime(date.Weekday())
	for _, d := range days {
		if d == wd {
			return true
		}
	}
	return false
}

func endDate(r *model.Reminder) *time.Time {
	if r.RepeatType == model.RepeatCustom && r.CustomRepeat != nil {
		return r.CustomRepeat.EndDate
	}
	return nil
}
