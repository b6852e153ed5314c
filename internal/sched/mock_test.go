package sched

import (
	"context"
	"sync"
	"time"

	"github.com/njoerd114/remindcore/internal/model"
	"github.com/njoerd114/remindcore/internal/trigger"
)

// mockStore is an in-memory ReminderStore. Get and List hand out copies so a
// test only observes mutations that went through Save, matching the real
// store's JSON round trip.
type mockStore struct {
	mu        sync.Mutex
	reminders map[string]*model.Reminder
	bootMark  string
	subs      []func()

	getErr  error
	saveErr error
	listErr error
}

func newMockStore() *mockStore {
	return &mockStore{reminders: make(map[string]*model.Reminder)}
}

func (m *mockStore) put(r *model.Reminder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[r.ID] = clone(r)
}

func clone(r *model.Reminder) *model.Reminder {
	c := *r
	c.TimeSlots = append([]model.TimeSlot(nil), r.TimeSlots...)
	if r.SnoozedUntil != nil {
		t := *r.SnoozedUntil
		c.SnoozedUntil = &t
	}
	return &c
}

func (m *mockStore) Get(_ context.Context, id string) (*model.Reminder, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil, nil
	}
	return clone(r), nil
}

func (m *mockStore) List(_ context.Context) ([]*model.Reminder, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		out = append(out, clone(r))
	}
	return out, nil
}

func (m *mockStore) Save(_ context.Context, r *model.Reminder) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if err := r.Validate(); err != nil {
		return err
	}
	m.put(r)
	m.notify()
	return nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.reminders, id)
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *mockStore) notify() {
	m.mu.Lock()
	subs := make([]func(), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (m *mockStore) Subscribe(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
	return func() {}
}

func (m *mockStore) BootReconciled(_ context.Context, bootID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bootMark == bootID, nil
}

func (m *mockStore) MarkBootReconciled(_ context.Context, bootID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bootMark = bootID
	return nil
}

// mockSink simulates the OS alarm surface: registrations keyed by trigger ID
// with replace-on-same-ID semantics. clearAll simulates a reboot wiping every
// registered alarm.
type mockSink struct {
	mu         sync.Mutex
	registered map[string]trigger.Registration

	allowExact bool

	// failFor makes Register fail for triggers of one reminder, so tests can
	// exercise per-reminder error isolation.
	failFor map[string]error
}

func newMockSink() *mockSink {
	return &mockSink{registered: make(map[string]trigger.Registration), allowExact: true}
}

func (m *mockSink) Register(_ context.Context, reg trigger.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[reg.Payload.ReminderID]; err != nil {
		return err
	}
	m.registered[reg.ID] = reg
	return nil
}

func (m *mockSink) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registered, id)
	return nil
}

func (m *mockSink) ExactSchedulingAllowed(_ context.Context) (bool, error) {
	return m.allowExact, nil
}

func (m *mockSink) clearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = make(map[string]trigger.Registration)
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registered)
}

func (m *mockSink) holds(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.registered[id]
	return ok
}

func at(y int, mo time.Month, d, hh, mm int) time.Time {
	return time.Date(y, mo, d, hh, mm, 0, 0, time.UTC)
}
