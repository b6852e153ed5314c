package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Stats tracks the outcome of a single reconcile pass.
type Stats struct {
	// Rescheduled counts reminders that now hold at least one OS trigger.
	Rescheduled int
	// Skipped counts reminders left alone: not schedulable, or with no
	// occurrence ahead (a past one-shot is never resurrected).
	Skipped int
	// Errors counts reminders whose rescheduling failed. Failures are
	// isolated per reminder; the pass always continues.
	Errors int
}

// Reconciler converges the OS trigger set with what the reminder store says
// it should be. It runs at process startup and after a device reboot, when
// the platform has dropped every previously-registered alarm.
//
// Because trigger IDs are deterministic, a reconcile pass is idempotent: a
// race with a foreground ScheduleNext for the same reminder ends in the same
// registrations either way, so the only mutual exclusion here is the
// reentrancy guard that collapses duplicate boot broadcasts.
type Reconciler struct {
	store ReminderStore
	sched TriggerScheduler
	log   *slog.Logger
	now   func() time.Time

	// running collapses concurrent passes: platforms deliver more than one
	// boot-adjacent broadcast, and running the protocol twice wastes OS
	// registration calls.
	running sync.Mutex
}

// NewReconciler creates a Reconciler over the given store and scheduler.
func NewReconciler(store ReminderStore, sched TriggerScheduler, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, sched: sched, log: logger, now: time.Now}
}

// Run performs one reconcile pass, as done at normal process startup. If a
// pass is already in flight the call is a no-op.
func (r *Reconciler) Run(ctx context.Context) (Stats, error) {
	if !r.running.TryLock() {
		r.log.Debug("reconcile already in progress, skipping")
		return Stats{}, nil
	}
	defer r.running.Unlock()

	return r.pass(ctx)
}

// RunBoot performs the boot-recovery protocol for the given boot-session ID.
// The persisted marker ensures the protocol runs at most once per boot cycle
// no matter how many boot broadcasts arrive; the marker survives normal app
// restarts and is invalidated only by the next boot presenting a new ID.
//
// The marker is written only after a pass completes in full, so a pass cut
// short by the execution budget is retried at the next opportunity.
func (r *Reconciler) RunBoot(ctx context.Context, bootID string) (Stats, error) {
	if !r.running.TryLock() {
		r.log.Debug("boot reconcile already in progress, skipping", "boot_id", bootID)
		return Stats{}, nil
	}
	defer r.running.Unlock()

	done, err := r.store.BootReconciled(ctx, bootID)
	if err != nil {
		return Stats{}, fmt.Errorf("checking boot marker: %w", err)
	}
	if done {
		r.log.Debug("boot already reconciled", "boot_id", bootID)
		return Stats{}, nil
	}

	stats, passErr := r.pass(ctx)
	if passErr == nil && ctx.Err() == nil {
		if err := r.store.MarkBootReconciled(ctx, bootID); err != nil {
			r.log.Error("writing boot marker", "boot_id", bootID, "error", err)
		}
	}
	return stats, passErr
}

// pass iterates the reminder set and reschedules everything eligible. Each
// reminder is isolated: a failure is counted and logged, never propagated to
// its neighbours. The context carries the execution budget; when it expires
// the pass stops early in a safe state (some reminders un-rescheduled, none
// double-scheduled).
func (r *Reconciler) pass(ctx context.Context) (Stats, error) {
	var stats Stats
	var firstErr error

	reminders, err := r.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading reminders: %w", err)
	}

	now := r.now()
	for _, rem := range reminders {
		if ctx.Err() != nil {
			r.log.Warn("reconcile budget exhausted, stopping early",
				"processed", stats.Rescheduled+stats.Skipped+stats.Errors,
				"total", len(reminders),
			)
			break
		}

		if !rem.Schedulable() {
			stats.Skipped++
			continue
		}

		res, err := r.sched.ScheduleNext(ctx, rem, now)
		if err != nil {
			r.log.Error("rescheduling failed", "reminder_id", rem.ID, "title", rem.Title, "error", err)
			stats.Errors++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if res.NoFurther {
			// Past one-shots and expired repeats stay as they are.
			stats.Skipped++
			continue
		}
		stats.Rescheduled++
	}

	r.log.Info("reconcile complete",
		"rescheduled", stats.Rescheduled,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)
	return stats, firstErr
}
