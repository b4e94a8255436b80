package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iQuickDev/legacy-calendar-client/internal/model"
)

// EventTransport is the slice of the API contract the event repository
// depends on.
type EventTransport interface {
	FindAllEvents(ctx context.Context) ([]model.Event, error)
	CreateEvent(ctx context.Context, draft model.EventDraft) error
	DeleteEvent(ctx context.Context, id int) error
	JoinEvent(ctx context.Context, id int, draft *model.ParticipationDraft) error
	LeaveEvent(ctx context.Context, id int) error
}

// EventRepository owns the canonical event list. The list is replaced
// wholesale on every successful fetch; after create/join/leave the
// repository re-fetches rather than trusting a locally synthesized event.
// Deletion is the one optimistic exception: a confirmed delete removes the
// entry locally with no refetch, since there is no server-derived data to
// reconcile afterwards.
//
// Concurrent operations are not serialized. The mutex guards individual
// field accesses only; when two operations overlap, whichever completes
// last overwrites the shared loading/error/list state.
type EventRepository struct {
	transport EventTransport
	log       zerolog.Logger

	mu      sync.Mutex
	events  []model.Event
	loading bool
	errMsg  string
	subs    []func()
}

// NewEventRepository constructs an event repository over the given
// transport.
func NewEventRepository(t EventTransport, log zerolog.Logger) *EventRepository {
	return &EventRepository{
		transport: t,
		log:       log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers fn to run after every change to the canonical list.
// Subscribers are invoked synchronously and must not block.
func (r *EventRepository) Subscribe(fn func()) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

// Snapshot returns a copy of the canonical event list.
func (r *EventRepository) Snapshot() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByID returns the event with the given identity, if present.
func (r *EventRepository) ByID(id int) (model.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

// ByDate returns the events starting on the calendar day of date, in list
// order.
func (r *EventRepository) ByDate(date time.Time) []model.Event {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	var out []model.Event
	for _, ev := range r.Snapshot() {
		if !ev.HasStart() {
			continue
		}
		start := ev.StartTime.In(day.Location())
		if start.Year() == day.Year() && start.Month() == day.Month() && start.Day() == day.Day() {
			out = append(out, ev)
		}
	}
	return out
}

// Loading reports whether at least one operation may still be in flight.
func (r *EventRepository) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the current error message, empty when there is none.
func (r *EventRepository) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errMsg
}

// ClearError resets the error message without touching other state.
func (r *EventRepository) ClearError() {
	r.mu.Lock()
	r.errMsg = ""
	r.mu.Unlock()
}

// FetchAll replaces the canonical list with the server's. Returns false
// and records an error message when the transport fails.
func (r *EventRepository) FetchAll(ctx context.Context) bool {
	r.begin()
	defer r.endLoading()

	events, err := r.transport.FindAllEvents(ctx)
	if err != nil {
		r.fail("fetch events", err, msgLoadEventsFailed)
		return false
	}

	r.mu.Lock()
	r.events = events
	r.mu.Unlock()
	r.log.Debug().Int("count", len(events)).Msg("event list replaced")
	r.notify()
	return true
}

// Create submits a draft. On success the repository re-fetches the full
// list before returning true; the new event's server-assigned identity is
// only known after that refetch. The draft is not validated locally.
func (r *EventRepository) Create(ctx context.Context, draft model.EventDraft) bool {
	r.begin()
	defer r.endLoading()

	if err := r.transport.CreateEvent(ctx, draft); err != nil {
		r.fail("create event", err, msgCreateEventFailed)
		return false
	}

	r.FetchAll(ctx)
	return true
}

// Remove deletes the event with the given identity. On success the entry
// is removed locally without a refetch; the server confirmed the delete and
// there is nothing further to reconcile.
func (r *EventRepository) Remove(ctx context.Context, id int) bool {
	r.begin()
	defer r.endLoading()

	if err := r.transport.DeleteEvent(ctx, id); err != nil {
		r.fail("delete event", err, msgDeleteEventFailed)
		return false
	}

	r.mu.Lock()
	kept := r.events[:0:0]
	for _, ev := range r.events {
		if ev.ID != id {
			kept = append(kept, ev)
		}
	}
	r.events = kept
	r.mu.Unlock()
	r.log.Debug().Int("event_id", id).Msg("event removed locally")
	r.notify()
	return true
}

// Join submits a membership request, optionally with wants-* flags. The
// participant list is server-derived, so success triggers a refetch.
func (r *EventRepository) Join(ctx context.Context, id int, draft *model.ParticipationDraft) bool {
	r.begin()
	defer r.endLoading()

	if err := r.transport.JoinEvent(ctx, id, draft); err != nil {
		r.fail("join event", err, msgJoinEventFailed)
		return false
	}

	r.FetchAll(ctx)
	return true
}

// Leave withdraws from an event. Success triggers a refetch for the same
// reason Join does.
func (r *EventRepository) Leave(ctx context.Context, id int) bool {
	r.begin()
	defer r.endLoading()

	if err := r.transport.LeaveEvent(ctx, id); err != nil {
		r.fail("leave event", err, msgLeaveEventFailed)
		return false
	}

	r.FetchAll(ctx)
	return true
}

func (r *EventRepository) begin() {
	r.mu.Lock()
	r.loading = true
	r.errMsg = ""
	r.mu.Unlock()
}

func (r *EventRepository) endLoading() {
	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
}

func (r *EventRepository) fail(op string, err error, fallback string) {
	msg := errorMessage(err, fallback)
	r.mu.Lock()
	r.errMsg = msg
	r.mu.Unlock()
	r.log.Error().Err(err).Str("op", op).Msg(msg)
}

func (r *EventRepository) notify() {
	r.mu.Lock()
	subs := make([]func(), len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}
