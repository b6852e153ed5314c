// Package sched contains the stateful half of the scheduling engine: the
// boot-recovery [Reconciler], the [Handler] that reacts to fired triggers,
// and the [Engine] that ties store, scheduler, and observability together.
//
// The package holds no OS integration of its own. The platform shell feeds it
// boot signals and fired-trigger events and implements [trigger.Sink]; the
// logic here is plain functions over (event, store, scheduler) and is tested
// without any real OS alarm API.
package sched

import (
	"context"
	"time"

	"github.com/njoerd114/remindcore/internal/model"
	"github.com/njoerd114/remindcore/internal/trigger"
)

// ReminderStore is the durable reminder repository.
// Implemented by [store.Store].
type ReminderStore interface {
	Get(ctx context.Context, id string) (*model.Reminder, error)
	List(ctx context.Context) ([]*model.Reminder, error)
	Save(ctx context.Context, r *model.Reminder) error
	Delete(ctx context.Context, id string) error
	Subscribe(fn func()) (unsubscribe func())
	BootReconciled(ctx context.Context, bootID string) (bool, error)
	MarkBootReconciled(ctx context.Context, bootID string) error
}

// TriggerScheduler maintains OS trigger registrations for reminders.
// Implemented by [trigger.Scheduler].
type TriggerScheduler interface {
	ScheduleNext(ctx context.Context, r *model.Reminder, now time.Time) (trigger.Result, error)
	CancelAll(ctx context.Context, r *model.Reminder) error
	CancelRemoved(ctx context.Context, prev, curr *model.Reminder) error
}
