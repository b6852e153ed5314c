package sched

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/remindcore/internal/model"
	"github.com/njoerd114/remindcore/internal/occurrence"
	"github.com/njoerd114/remindcore/internal/trigger"
)

// Display is what the trigger sink should surface to the user for a firing.
// Degraded marks content taken from the trigger payload because the store
// could not be read; the user still sees something.
type Display struct {
	Title       string
	Description string
	Degraded    bool
}

// Handler reacts to fired-trigger callbacks from the sink: it applies
// completion state, advances repeating reminders to their next occurrence,
// and re-registers the following trigger.
type Handler struct {
	store ReminderStore
	sched TriggerScheduler
	log   *slog.Logger
	now   func() time.Time
}

// NewHandler creates a Handler over the given store and scheduler.
func NewHandler(store ReminderStore, sched TriggerScheduler, logger *slog.Logger) *Handler {
	return &Handler{store: store, sched: sched, log: logger, now: time.Now}
}

// HandleFired processes one fired trigger. It always produces a Display,
// because the user-visible part must survive a transiently unavailable store,
// and returns an error only when the advanced state could not be persisted.
//
// Per occurrence the state machine runs pending, fired, completed, with
// repeating reminders looping back to a fresh pending cycle. A reminder with
// no further occurrences becomes completed overall.
func (h *Handler) HandleFired(ctx context.Context, ev trigger.FiredEvent) (Display, error) {
	display := Display{Title: ev.Payload.Title, Description: ev.Payload.Description}

	rem, err := h.store.Get(ctx, ev.Payload.ReminderID)
	if err != nil {
		// Degraded path: surface the payload, skip the state advance. The
		// next reconcile pass repairs the registration set.
		h.log.Warn("store unavailable for fired trigger, using payload",
			"reminder_id", ev.Payload.ReminderID, "error", err)
		display.Degraded = true
		return display, nil
	}
	if rem == nil {
		// Deleted after registration. Nothing to advance; best-effort
		// cancel of whatever else is still registered under this ID space.
		h.log.Warn("fired trigger for unknown reminder", "reminder_id", ev.Payload.ReminderID)
		display.Degraded = true
		return display, nil
	}

	display.Title, display.Description = rem.Title, rem.Description

	// A snooze is consumed by exactly one firing, whichever trigger
	// delivered it.
	rem.SnoozedUntil = nil

	h.applyCompletion(rem, ev.Payload.SlotID)

	// Advance-or-complete: a pending reminder with nothing ahead of it is
	// terminal. NoFurtherOccurrences is a defined result, not an error.
	if rem.Status == model.StatusPending {
		next, err := occurrence.NextOccurrence(rem, h.now())
		if err != nil {
			return display, fmt.Errorf("computing next occurrence for %s: %w", rem.ID, err)
		}
		if next == nil {
			rem.Status = model.StatusCompleted
		}
	}

	if err := h.store.Save(ctx, rem); err != nil {
		return display, fmt.Errorf("persisting advanced state for %s: %w", rem.ID, err)
	}

	// ScheduleNext registers the next instance for repeating reminders and
	// cancels everything for reminders that just became terminal.
	if _, err := h.sched.ScheduleNext(ctx, rem, h.now()); err != nil {
		h.log.Error("rescheduling after firing failed", "reminder_id", rem.ID, "error", err)
	}

	return display, nil
}

// applyCompletion marks the fired slot (or the whole single-time reminder)
// completed. When every slot of a repeating reminder has fired, the cycle
// resets: all slots return to pending for the next occurrence date.
func (h *Handler) applyCompletion(rem *model.Reminder, slotID string) {
	if slotID != "" {
		if slot := rem.Slot(slotID); slot != nil {
			slot.Status = model.SlotCompleted
		} else {
			h.log.Warn("fired trigger names unknown slot", "reminder_id", rem.ID, "slot_id", slotID)
		}
		if rem.AllSlotsCompleted() {
			if rem.Repeating() {
				rem.ResetSlots()
			} else {
				rem.Status = model.StatusCompleted
			}
		}
		return
	}

	// Slot-less firing (single-time or snooze). Multi-slot reminders reach
	// here only via snooze, which completes no slot.
	if len(rem.TimeSlots) == 0 && !rem.Repeating() {
		rem.Status = model.StatusCompleted
	}
}
