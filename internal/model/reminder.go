// Package model defines the reminder entity and its recurrence value types,
// shared by the occurrence calculator, store, scheduler, and handler.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a reminder.
type Status string

const (
	// StatusPending marks a reminder that still has firings ahead of it.
	// Only pending reminders are schedulable.
	StatusPending Status = "pending"
	// StatusCompleted marks a reminder with no further occurrences.
	StatusCompleted Status = "completed"
	// StatusOverdue is a display-only state for a pending one-shot whose
	// time has passed. It is never persisted by the engine.
	StatusOverdue Status = "overdue"
)

// SlotStatus tracks per-slot completion within the current occurrence cycle.
type SlotStatus string

const (
	// SlotPending marks a slot that has not fired in the current cycle.
	SlotPending SlotStatus = "pending"
	// SlotCompleted marks a slot that fired in the current cycle.
	SlotCompleted SlotStatus = "completed"
)

// RepeatType describes how a reminder recurs.
type RepeatType string

const (
	RepeatNone    RepeatType = "none"
	RepeatDaily   RepeatType = "daily"
	RepeatWeekly  RepeatType = "weekly"
	RepeatMonthly RepeatType = "monthly"
	RepeatCustom  RepeatType = "custom"
)

// String returns the human-readable label for the repeat type.
func (t RepeatType) String() string {
	switch t {
	case RepeatNone:
		return "Once"
	case RepeatDaily:
		return "Daily"
	case RepeatWeekly:
		return "Weekly"
	case RepeatMonthly:
		return "Monthly"
	case RepeatCustom:
		return "Custom"
	default:
		return string(t)
	}
}

func (t RepeatType) valid() bool {
	switch t {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatCustom:
		return true
	}
	return false
}

// ClockTime is a time of day (hour:minute) independent of any date.
// It marshals as "HH:MM".
type ClockTime struct {
	Hour   int
	Minute int
}

// On combines the clock time with the given date in that date's location.
func (c ClockTime) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, date.Location())
}

// String formats the clock time as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalJSON encodes the clock time as an "HH:MM" string.
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses an "HH:MM" string, rejecting out-of-range values.
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("parsing clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("clock time %q out of range", s)
	}
	c.Hour, c.Minute = h, m
	return nil
}

// TimeSlot is one of a reminder's independent daily firing times. Status is
// tracked for the current occurrence cycle only; the handler resets all slots
// to pending when a repeating reminder rolls into its next cycle.
type TimeSlot struct {
	ID     string     `json:"id"`
	Time   ClockTime  `json:"time"`
	Status SlotStatus `json:"status"`
}

// Reminder is the central scheduling entity. ScheduledTime anchors the
// occurrence sequence; for multi-time reminders the TimeSlots define the
// firing times-of-day on each occurrence date instead.
type Reminder struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	ScheduledTime time.Time  `json:"scheduledTime"`
	Status        Status     `json:"status"`
	RepeatType    RepeatType `json:"repeatType"`

	// CustomRepeat must be present exactly when RepeatType is custom.
	CustomRepeat *CustomRepeatConfig `json:"customRepeatConfig,omitempty"`

	// TimeSlots, when non-empty, make the reminder fire independently at
	// each slot's time-of-day on every occurrence date.
	TimeSlots []TimeSlot `json:"timeSlots,omitempty"`

	// NotificationEnabled gates all trigger registration for this reminder.
	NotificationEnabled bool `json:"isNotificationEnabled"`

	// SnoozedUntil, when set and in the future, supersedes the computed
	// next occurrence for exactly one firing and is then cleared.
	SnoozedUntil *time.Time `json:"snoozedUntil,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a pending, notification-enabled reminder with a fresh ID.
func New(title string, scheduledTime time.Time) *Reminder {
	now := time.Now().UTC()
	return &Reminder{
		ID:                  uuid.NewString(),
		Title:               title,
		ScheduledTime:       scheduledTime,
		Status:              StatusPending,
		RepeatType:          RepeatNone,
		NotificationEnabled: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NewSlot creates a pending time slot with a fresh ID.
func NewSlot(hour, minute int) TimeSlot {
	return TimeSlot{
		ID:     uuid.NewString(),
		Time:   ClockTime{Hour: hour, Minute: minute},
		Status: SlotPending,
	}
}

// Validate checks structural invariants. It is called on every save and on
// every record read back from disk, so a malformed record is caught before it
// can reach the calculator.
func (r *Reminder) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("reminder has no id")
	}
	if r.ScheduledTime.IsZero() {
		return fmt.Errorf("reminder %s has no scheduled time", r.ID)
	}
	switch r.Status {
	case StatusPending, StatusCompleted, StatusOverdue:
	default:
		return fmt.Errorf("reminder %s has unknown status %q", r.ID, r.Status)
	}
	if !r.RepeatType.valid() {
		return fmt.Errorf("reminder %s has unknown repeat type %q", r.ID, r.RepeatType)
	}
	if r.RepeatType == RepeatCustom {
		if r.CustomRepeat == nil {
			return fmt.Errorf("reminder %s: %w: custom repeat with no config", r.ID, ErrInvalidRecurrence)
		}
		if err := r.CustomRepeat.Validate(); err != nil {
			return fmt.Errorf("reminder %s: %w", r.ID, err)
		}
	} else if r.CustomRepeat != nil {
		return fmt.Errorf("reminder %s: %w: custom config present but repeat type is %q",
			r.ID, ErrInvalidRecurrence, r.RepeatType)
	}
	seen := make(map[string]bool, len(r.TimeSlots))
	for _, s := range r.TimeSlots {
		if s.ID == "" {
			return fmt.Errorf("reminder %s has a slot with no id", r.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("reminder %s has duplicate slot id %q", r.ID, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Repeating reports whether the reminder produces more than one occurrence.
func (r *Reminder) Repeating() bool {
	return r.RepeatType != RepeatNone
}

// Schedulable reports whether the engine should hold OS triggers for this
// reminder at all.
func (r *Reminder) Schedulable() bool {
	return r.Status == StatusPending && r.NotificationEnabled
}

// Slot returns the slot with the given ID, or nil.
func (r *Reminder) Slot(id string) *TimeSlot {
	for i := range r.TimeSlots {
		if r.TimeSlots[i].ID == id {
			return &r.TimeSlots[i]
		}
	}
	return nil
}

// AllSlotsCompleted reports whether every slot has fired this cycle.
// False for reminders without slots.
func (r *Reminder) AllSlotsCompleted() bool {
	if len(r.TimeSlots) == 0 {
		return false
	}
	for _, s := range r.TimeSlots {
		if s.Status != SlotCompleted {
			return false
		}
	}
	return true
}

// ResetSlots returns every slot to pending for a fresh occurrence cycle.
func (r *Reminder) ResetSlots() {
	for i := range r.TimeSlots {
		r.TimeSlots[i].Status = SlotPending
	}
}

// DisplayStatus derives the user-facing status at the given instant:
// a pending one-shot whose time has passed shows as overdue.
func (r *Reminder) DisplayStatus(now time.Time) Status {
	if r.Status == StatusPending && r.RepeatType == RepeatNone &&
		len(r.TimeSlots) == 0 && !r.ScheduledTime.After(now) {
		return StatusOverdue
	}
	return r.Status
}
