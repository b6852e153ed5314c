package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/remindcore/internal/model"
	"github.com/njoerd114/remindcore/internal/trigger"
)

const (
	otelScope         = "remindcore/sched"
	spanReconcile     = "sched.reconcile"
	spanBoot          = "sched.boot_recovery"
	metricRescheduled = "remindcore.reconcile.rescheduled"
	metricSkipped     = "remindcore.reconcile.skipped"
	metricErrors      = "remindcore.reconcile.errors"
	metricFired       = "remindcore.triggers.fired"
)

// SaveOutcome tells the caller what happened to a saved reminder. A reminder
// that is saved but holds no OS trigger must never look "saved and safe" in
// the UI, so the two facts are reported separately.
type SaveOutcome struct {
	// Scheduled is true when at least one OS trigger is now registered.
	Scheduled bool

	// Registered is the number of triggers held after the save.
	Registered int

	// ScheduleErr explains why nothing was scheduled (for example
	// [trigger.ErrExactAlarmPermission]). Nil when Scheduled is true or
	// when the reminder simply has no occurrence ahead.
	ScheduleErr error
}

// Engine is the application-facing surface of the scheduling core. It wires
// the reconciler, fired-trigger handler, store, and scheduler together, adds
// observability, and runs the freshness loop: push-based store subscription
// first, a bounded-interval poll as the safety net behind it.
type Engine struct {
	reconciler *Reconciler
	handler    *Handler
	store      ReminderStore
	sched      TriggerScheduler
	log        *slog.Logger
	now        func() time.Time

	// pollInterval drives the cron-backed fallback pass.
	pollInterval time.Duration

	// budget bounds every pass, matching the platform's background
	// execution limits.
	budget time.Duration

	// changed coalesces store-change notifications into at most one
	// pending reconcile.
	changed chan struct{}

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer         trace.Tracer
	cntRescheduled metric.Int64Counter
	cntSkipped     metric.Int64Counter
	cntErrors      metric.Int64Counter
	cntFired       metric.Int64Counter
}

// New creates an Engine. pollInterval controls the fallback reconcile loop;
// budget bounds each pass (use the platform's background execution limit).
func New(store ReminderStore, sched TriggerScheduler, pollInterval, budget time.Duration, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		reconciler:   NewReconciler(store, sched, logger),
		handler:      NewHandler(store, sched, logger),
		store:        store,
		sched:        sched,
		log:          logger,
		now:          time.Now,
		pollInterval: pollInterval,
		budget:       budget,
		changed:      make(chan struct{}, 1),

		tracer:         tracer,
		cntRescheduled: mustCounter(metricRescheduled, "Reminders rescheduled during reconcile"),
		cntSkipped:     mustCounter(metricSkipped, "Reminders skipped during reconcile"),
		cntErrors:      mustCounter(metricErrors, "Errors encountered during reconcile"),
		cntFired:       mustCounter(metricFired, "Triggers fired and handled"),
	}
}

// reconcile runs one budgeted pass, recording a trace span and counters.
func (e *Engine) reconcile(ctx context.Context, span string, run func(context.Context) (Stats, error)) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()

	ctx, sp := e.tracer.Start(ctx, span)
	defer sp.End()

	stats, err := run(ctx)

	if stats.Rescheduled > 0 {
		e.cntRescheduled.Add(ctx, int64(stats.Rescheduled))
	}
	if stats.Skipped > 0 {
		e.cntSkipped.Add(ctx, int64(stats.Skipped))
	}
	if stats.Errors > 0 {
		e.cntErrors.Add(ctx, int64(stats.Errors))
	}

	sp.SetAttributes(
		attribute.Int("reconcile.rescheduled", stats.Rescheduled),
		attribute.Int("reconcile.skipped", stats.Skipped),
		attribute.Int("reconcile.errors", stats.Errors),
	)
	if err != nil {
		sp.RecordError(err)
	}
	return stats, err
}

// RunOnce performs a single reconcile pass and returns, as done at normal
// process startup.
func (e *Engine) RunOnce(ctx context.Context) (Stats, error) {
	return e.reconcile(ctx, spanReconcile, e.reconciler.Run)
}

// OnBoot runs the boot-recovery protocol for the given boot-session ID.
// Safe to call once per boot broadcast; duplicates collapse to one pass.
func (e *Engine) OnBoot(ctx context.Context, bootID string) (Stats, error) {
	return e.reconcile(ctx, spanBoot, func(ctx context.Context) (Stats, error) {
		return e.reconciler.RunBoot(ctx, bootID)
	})
}

// HandleFired processes a fired-trigger callback from the sink.
func (e *Engine) HandleFired(ctx context.Context, ev trigger.FiredEvent) (Display, error) {
	display, err := e.handler.HandleFired(ctx, ev)
	e.cntFired.Add(ctx, 1)
	return display, err
}

// Run starts the freshness loop: an immediate pass, then a reconcile per
// coalesced store change, with a cron-driven fallback pass every
// pollInterval in case a change slipped past the push path. Blocks until ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	unsubscribe := e.store.Subscribe(func() {
		select {
		case e.changed <- struct{}{}:
		default: // a reconcile is already pending
		}
	})
	defer unsubscribe()

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", e.pollInterval), func() {
		select {
		case e.changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("starting poll schedule: %w", err)
	}
	c.Start()
	defer c.Stop()

	if _, err := e.RunOnce(ctx); err != nil {
		e.log.Error("initial reconcile failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Info("scheduling engine shutting down")
			return ctx.Err()
		case <-e.changed:
			if _, err := e.RunOnce(ctx); err != nil {
				e.log.Error("reconcile failed", "error", err)
			}
		}
	}
}

// --- User-edit operations ----------------------------------------------------

// SaveReminder validates and persists a reminder, then registers its
// triggers. The outcome distinguishes "saved and scheduled" from "saved but
// NOT scheduled" so the UI can warn instead of silently losing a firing.
//
// An edit that removed time slots also cancels the removed slots' triggers.
// Their IDs derive from the previous version only, so this is the last point
// at which they are still computable.
func (e *Engine) SaveReminder(ctx context.Context, r *model.Reminder) (SaveOutcome, error) {
	prev, err := e.store.Get(ctx, r.ID)
	if err != nil {
		return SaveOutcome{}, fmt.Errorf("loading previous version of %s: %w", r.ID, err)
	}

	if err := e.store.Save(ctx, r); err != nil {
		return SaveOutcome{}, err
	}

	if prev != nil {
		if err := e.sched.CancelRemoved(ctx, prev, r); err != nil {
			return SaveOutcome{ScheduleErr: err}, nil
		}
	}

	res, err := e.sched.ScheduleNext(ctx, r, e.now())
	if err != nil {
		// Saved, not scheduled. The user-initiated path must see this
		// immediately rather than discover it at the missed firing.
		return SaveOutcome{ScheduleErr: err}, nil
	}
	return SaveOutcome{
		Scheduled:  len(res.Registered) > 0,
		Registered: len(res.Registered),
	}, nil
}

// DeleteReminder cancels the reminder's OS triggers and removes it from the
// store. Cancellation is synchronous: there is no window in which a deleted
// reminder can still fire. Deleting an unknown ID is a no-op.
func (e *Engine) DeleteReminder(ctx context.Context, id string) error {
	rem, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading reminder %s: %w", id, err)
	}
	if rem == nil {
		return nil
	}
	if err := e.sched.CancelAll(ctx, rem); err != nil {
		return err
	}
	return e.store.Delete(ctx, id)
}

// SetNotificationEnabled flips the notification gate. Disabling cancels the
// reminder's triggers before the call returns; enabling schedules the next
// occurrence.
func (e *Engine) SetNotificationEnabled(ctx context.Context, id string, enabled bool) error {
	rem, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading reminder %s: %w", id, err)
	}
	if rem == nil {
		return fmt.Errorf("reminder %s not found", id)
	}
	if rem.NotificationEnabled == enabled {
		return nil
	}

	if !enabled {
		// Cancel first so a save failure can only leave an un-triggered
		// enabled flag behind, which the next reconcile repairs.
		if err := e.sched.CancelAll(ctx, rem); err != nil {
			return err
		}
	}
	rem.NotificationEnabled = enabled
	if err := e.store.Save(ctx, rem); err != nil {
		return err
	}
	if enabled {
		if _, err := e.sched.ScheduleNext(ctx, rem, e.now()); err != nil {
			return err
		}
	}
	return nil
}

// Snooze overrides the reminder's next firing with the given instant, for
// exactly one firing. The handler clears the override when it is consumed.
func (e *Engine) Snooze(ctx context.Context, id string, until time.Time) error {
	if !until.After(e.now()) {
		return errors.New("snooze target must be in the future")
	}
	rem, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading reminder %s: %w", id, err)
	}
	if rem == nil {
		return fmt.Errorf("reminder %s not found", id)
	}

	rem.SnoozedUntil = &until
	if err := e.store.Save(ctx, rem); err != nil {
		return err
	}
	if _, err := e.sched.ScheduleNext(ctx, rem, e.now()); err != nil {
		return err
	}
	return nil
}
