package calendar

import (
	"sync"
	"time"

	"github.com/iQuickDev/legacy-calendar-client/internal/model"
)

// EventSource supplies the current canonical event list. The event
// repository satisfies it via Snapshot.
type EventSource interface {
	Snapshot() []model.Event
}

// Facade composes the grid builder with a month cursor and an event
// source. The grid is a derived value: Days recomputes it from explicit
// inputs on every call, so the façade never holds a stale copy.
type Facade struct {
	events EventSource
	now    func() time.Time

	mu     sync.Mutex
	cursor time.Time
	subs   []func()
}

// NewFacade creates a façade cursored at the current month.
func NewFacade(events EventSource) *Facade {
	return NewFacadeAt(events, time.Now)
}

// NewFacadeAt is NewFacade with an explicit clock.
func NewFacadeAt(events EventSource, now func() time.Time) *Facade {
	if now == nil {
		now = time.Now
	}
	return &Facade{
		events: events,
		now:    now,
		cursor: now(),
	}
}

// Subscribe registers fn to run after every cursor move. To also react to
// event list changes, register EventsChanged with the event repository.
func (f *Facade) Subscribe(fn func()) {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
}

// EventsChanged notifies subscribers that the underlying event list moved;
// wire it to the event repository's subscription.
func (f *Facade) EventsChanged() {
	f.notify()
}

// Month returns the cursor's year and month.
func (f *Facade) Month() (int, time.Month) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor.Year(), f.cursor.Month()
}

// Days rebuilds the grid for the cursor month from the current event list.
func (f *Facade) Days() []Day {
	f.mu.Lock()
	cursor := f.cursor
	f.mu.Unlock()
	return BuildGridAt(cursor, f.events.Snapshot(), f.now())
}

// NextMonth moves the cursor one month forward.
func (f *Facade) NextMonth() {
	f.shift(1)
}

// PrevMonth moves the cursor one month back.
func (f *Facade) PrevMonth() {
	f.shift(-1)
}

// GoToToday resets the cursor to the current month.
func (f *Facade) GoToToday() {
	f.mu.Lock()
	f.cursor = f.now()
	f.mu.Unlock()
	f.notify()
}

func (f *Facade) shift(months int) {
	f.mu.Lock()
	// Anchor to the first of the month so cursor days past the 28th cannot
	// skip short months.
	c := f.cursor
	f.cursor = time.Date(c.Year(), c.Month(), 1, 0, 0, 0, 0, c.Location()).AddDate(0, months, 0)
	f.mu.Unlock()
	f.notify()
}

func (f *Facade) notify() {
	f.mu.Lock()
	subs := make([]func(), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
