// Package trigger owns the boundary to the OS alarm/notification subsystem:
// the [Sink] interface the platform shell implements, the deterministic
// trigger-ID derivation, and the [Scheduler] that keeps OS registrations in
// step with the reminder set.
package trigger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrRegistrationFailed wraps an OS refusal or failure of a register/cancel
// call. Batch callers log it and continue with the next reminder.
var ErrRegistrationFailed = errors.New("trigger registration failed")

// ErrExactAlarmPermission is returned when the platform gates precise
// scheduling behind a permission the user has not granted. It must reach the
// user-initiated caller so a save is never silently "saved but unscheduled".
var ErrExactAlarmPermission = errors.New("exact alarm permission missing")

// Payload travels inside an OS trigger registration and back out with the
// fired callback. It carries enough to surface a notification even when the
// store is briefly unavailable at firing time.
type Payload struct {
	ReminderID  string `json:"reminderId"`
	SlotID      string `json:"slotId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Registration is one OS-level trigger: a deterministic ID, the absolute
// instant it fires at, and its payload. It is never persisted; it can always
// be recomputed from the reminder alone.
type Registration struct {
	ID      string
	At      time.Time
	Payload Payload
}

// Sink is the OS alarm/notification surface the engine schedules against.
// Register replaces any existing trigger with the same ID; that replacement
// semantic plus deterministic IDs is what makes rescheduling idempotent.
type Sink interface {
	Register(ctx context.Context, reg Registration) error
	Cancel(ctx context.Context, id string) error

	// ExactSchedulingAllowed reports whether precise alarms are currently
	// permitted. Checked before every registration batch because the
	// permission is runtime-revocable.
	ExactSchedulingAllowed(ctx context.Context) (bool, error)
}

// FiredEvent is the sink's callback when a registered instant is reached.
type FiredEvent struct {
	TriggerID string
	Payload   Payload
	FiredAt   time.Time
}

// ID derives the OS trigger identifier for a (reminder, slot) pair. The hash
// is stable across processes and carries no counter or randomness, so
// re-registering the same logical trigger replaces rather than duplicates it
// and reconciliation needs no side table. slotID is empty for single-time
// firings and snoozes.
func ID(reminderID, slotID string) string {
	h := sha256.New()
	h.Write([]byte(reminderID))
	h.Write([]byte("|"))
	h.Write([]byte(slotID))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
