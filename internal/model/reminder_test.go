package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := New("dentist", at)

	if r.ID == "" {
		t.Error("New did not mint an ID")
	}
	if r.Status != StatusPending {
		t.Errorf("Status = %q, want pending", r.Status)
	}
	if r.RepeatType != RepeatNone {
		t.Errorf("RepeatType = %q, want none", r.RepeatType)
	}
	if !r.NotificationEnabled {
		t.Error("new reminders should have notifications enabled")
	}
	if err := r.Validate(); err != nil {
		t.Errorf("fresh reminder fails validation: %v", err)
	}
}

func TestValidate_CustomWithoutConfig(t *testing.T) {
	r := New("water plants", time.Now())
	r.RepeatType = RepeatCustom

	err := r.Validate()
	if !errors.Is(err, ErrInvalidRecurrence) {
		t.Errorf("error = %v, want ErrInvalidRecurrence", err)
	}
}

func TestValidate_ConfigWithoutCustomType(t *testing.T) {
	r := New("water plants", time.Now())
	r.CustomRepeat, _ = NewCustomRepeat(0, 0, 2, nil, nil)

	err := r.Validate()
	if !errors.Is(err, ErrInvalidRecurrence) {
		t.Errorf("error = %v, want ErrInvalidRecurrence", err)
	}
}

func TestValidate_DuplicateSlotIDs(t *testing.T) {
	r := New("medication", time.Now())
	r.TimeSlots = []TimeSlot{
		{ID: "s1", Time: ClockTime{Hour: 8}, Status: SlotPending},
		{ID: "s1", Time: ClockTime{Hour: 20}, Status: SlotPending},
	}
	if err := r.Validate(); err == nil {
		t.Error("expected error for duplicate slot IDs")
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	r := New("x", time.Now())
	r.Status = "snoozing"
	if err := r.Validate(); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestSlotHelpers(t *testing.T) {
	r := New("medication", time.Now())
	r.TimeSlots = []TimeSlot{NewSlot(8, 0), NewSlot(20, 0)}

	if r.AllSlotsCompleted() {
		t.Error("fresh slots should not report all completed")
	}

	r.TimeSlots[0].Status = SlotCompleted
	if r.AllSlotsCompleted() {
		t.Error("one pending slot remains")
	}

	r.TimeSlots[1].Status = SlotCompleted
	if !r.AllSlotsCompleted() {
		t.Error("both slots completed")
	}

	r.ResetSlots()
	for _, s := range r.TimeSlots {
		if s.Status != SlotPending {
			t.Errorf("slot %s = %q after reset, want pending", s.ID, s.Status)
		}
	}

	if got := r.Slot(r.TimeSlots[1].ID); got == nil {
		t.Error("Slot lookup by ID returned nil")
	}
	if got := r.Slot("nope"); got != nil {
		t.Error("Slot lookup for unknown ID should return nil")
	}
}

func TestAllSlotsCompleted_NoSlots(t *testing.T) {
	r := New("single", time.Now())
	if r.AllSlotsCompleted() {
		t.Error("a slot-less reminder never reports all slots completed")
	}
}

func TestClockTime_JSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(ClockTime{Hour: 7, Minute: 5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"07:05"` {
		t.Errorf("marshalled to %s, want \"07:05\"", data)
	}

	var c ClockTime
	if err := json.Unmarshal([]byte(`"20:30"`), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Hour != 20 || c.Minute != 30 {
		t.Errorf("parsed %d:%d, want 20:30", c.Hour, c.Minute)
	}
}

func TestClockTime_RejectsOutOfRange(t *testing.T) {
	var c ClockTime
	if err := json.Unmarshal([]byte(`"24:00"`), &c); err == nil {
		t.Error("expected error for hour 24")
	}
	if err := json.Unmarshal([]byte(`"12:60"`), &c); err == nil {
		t.Error("expected error for minute 60")
	}
}

// The persisted layout is a cross-component contract: field names must stay
// exactly as the rest of the application expects them.
func TestReminder_PersistedFieldNames(t *testing.T) {
	snooze := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := New("dentist", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	r.TimeSlots = []TimeSlot{NewSlot(8, 0)}
	r.SnoozedUntil = &snooze

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	for _, key := range []string{
		`"id"`, `"title"`, `"scheduledTime"`, `"status"`, `"repeatType"`,
		`"timeSlots"`, `"isNotificationEnabled"`, `"snoozedUntil"`,
		`"createdAt"`, `"updatedAt"`,
	} {
		if !strings.Contains(string(data), key) {
			t.Errorf("persisted record is missing field %s:\n%s", key, data)
		}
	}
}

func TestClockTime_On(t *testing.T) {
	date := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	got := ClockTime{Hour: 8, Minute: 15}.On(date)
	want := time.Date(2026, 3, 1, 8, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("On() = %v, want %v", got, want)
	}
}

func TestDisplayStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	past := New("missed", now.Add(-time.Hour))
	if got := past.DisplayStatus(now); got != StatusOverdue {
		t.Errorf("past one-shot = %q, want overdue", got)
	}

	future := New("upcoming", now.Add(time.Hour))
	if got := future.DisplayStatus(now); got != StatusPending {
		t.Errorf("future one-shot = %q, want pending", got)
	}

	repeating := New("daily", now.Add(-time.Hour))
	repeating.RepeatType = RepeatDaily
	if got := repeating.DisplayStatus(now); got != StatusPending {
		t.Errorf("repeating = %q, want pending (never overdue)", got)
	}
}
