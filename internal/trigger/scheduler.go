package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/remindcore/internal/backoff"
	"github.com/njoerd114/remindcore/internal/model"
	"github.com/njoerd114/remindcore/internal/occurrence"
)

// Result reports what a ScheduleNext call did.
type Result struct {
	// Registered holds the triggers now held by the OS for this reminder.
	Registered []Registration

	// NoFurther is true when the calculator found no occurrence ahead of
	// now. Callers treat it as "mark the reminder completed", never as a
	// failure to log.
	NoFurther bool
}

// Scheduler translates reminders into OS trigger registrations and maintains
// the invariant that every pending, notification-enabled reminder has exactly
// one registered trigger per not-yet-fired firing, and nothing else does.
type Scheduler struct {
	sink Sink
	log  *slog.Logger
}

// NewScheduler creates a Scheduler wired to the given sink.
func NewScheduler(sink Sink, logger *slog.Logger) *Scheduler {
	return &Scheduler{sink: sink, log: logger}
}

// ScheduleNext computes the reminder's next firing(s) and registers one OS
// trigger per firing. Registration is idempotent: trigger IDs are derived
// from (reminder, slot), so calling this twice for the same state replaces
// instead of duplicating.
//
// Every derivable ID outside the new firing set is cancelled first, so a
// trigger superseded by the new state (a snoozed-over slot firing, a consumed
// snooze's base trigger) can never fire at its old instant.
//
// The exact-alarm permission is checked first; when missing, nothing is
// registered and [ErrExactAlarmPermission] is returned so the caller can
// distinguish "saved and scheduled" from "saved but NOT scheduled".
//
// A reminder that is not schedulable (completed, or notifications disabled)
// has all its triggers cancelled instead.
func (s *Scheduler) ScheduleNext(ctx context.Context, r *model.Reminder, now time.Time) (Result, error) {
	if !r.Schedulable() {
		if err := s.CancelAll(ctx, r); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	allowed, err := s.sink.ExactSchedulingAllowed(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("checking exact-alarm permission: %w", err)
	}
	if !allowed {
		return Result{}, fmt.Errorf("reminder %s: %w", r.ID, ErrExactAlarmPermission)
	}

	firings, err := occurrence.NextFirings(r, now)
	if err != nil {
		return Result{}, err
	}
	if len(firings) == 0 {
		// Nothing ahead: drop any stale registrations and report terminal.
		if err := s.CancelAll(ctx, r); err != nil {
			return Result{NoFurther: true}, err
		}
		return Result{NoFurther: true}, nil
	}

	// Cancel superseded triggers before registering new ones: during a
	// snooze the pending-slot triggers must not outlive the override.
	want := make(map[string]bool, len(firings))
	for _, f := range firings {
		want[ID(r.ID, f.SlotID)] = true
	}
	for _, id := range derivedIDs(r) {
		if want[id] {
			continue
		}
		if err := s.cancelID(ctx, r.ID, id); err != nil {
			return Result{}, err
		}
	}

	var res Result
	for _, f := range firings {
		reg := Registration{
			ID: ID(r.ID, f.SlotID),
			At: f.At,
			Payload: Payload{
				ReminderID:  r.ID,
				SlotID:      f.SlotID,
				Title:       r.Title,
				Description: r.Description,
			},
		}
		err := backoff.Do(ctx, backoff.DefaultAttempts, func() error {
			return s.sink.Register(ctx, reg)
		})
		if err != nil {
			return res, fmt.Errorf("%w: reminder %s at %s: %v", ErrRegistrationFailed, r.ID, f.At, err)
		}
		res.Registered = append(res.Registered, reg)
		s.log.Debug("trigger registered", "reminder_id", r.ID, "slot_id", f.SlotID, "at", f.At)
	}
	return res, nil
}

// CancelAll cancels every trigger whose ID derives from this reminder: the
// base (slot-less) trigger plus one per slot. IDs are recomputed, not looked
// up, so this works even when no registration was ever observed.
func (s *Scheduler) CancelAll(ctx context.Context, r *model.Reminder) error {
	ids := derivedIDs(r)
	for _, id := range ids {
		if err := s.cancelID(ctx, r.ID, id); err != nil {
			return err
		}
	}
	s.log.Debug("triggers cancelled", "reminder_id", r.ID, "count", len(ids))
	return nil
}

// CancelRemoved cancels triggers whose IDs derive from prev but not from
// curr. After an edit that removed time slots, the removed slots' IDs are no
// longer derivable from the current reminder, so no later reconcile pass
// could find them; this is the only place that still can.
func (s *Scheduler) CancelRemoved(ctx context.Context, prev, curr *model.Reminder) error {
	keep := make(map[string]bool, len(curr.TimeSlots)+1)
	for _, id := range derivedIDs(curr) {
		keep[id] = true
	}

	for _, id := range derivedIDs(prev) {
		if keep[id] {
			continue
		}
		if err := s.cancelID(ctx, prev.ID, id); err != nil {
			return err
		}
		s.log.Debug("removed-slot trigger cancelled", "reminder_id", prev.ID, "trigger_id", id)
	}
	return nil
}

// derivedIDs lists every trigger ID the reminder's current shape can produce.
func derivedIDs(r *model.Reminder) []string {
	ids := make([]string, 0, len(r.TimeSlots)+1)
	ids = append(ids, ID(r.ID, ""))
	for _, slot := range r.TimeSlots {
		ids = append(ids, ID(r.ID, slot.ID))
	}
	return ids
}

func (s *Scheduler) cancelID(ctx context.Context, reminderID, id string) error {
	err := backoff.Do(ctx, backoff.DefaultAttempts, func() error {
		return s.sink.Cancel(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("%w: cancelling trigger %s for reminder %s: %v",
			ErrRegistrationFailed, id, reminderID, err)
	}
	return nil
}
