// Package store holds the client's canonical in-memory state: the event
// list and the authenticated session. Repositories reconcile that state
// against the remote API through narrow transport interfaces and expose
// loading/error flags the way the original stores did: operations never
// panic and never leave the loading flag set on any exit path.
package store

import "errors"

// Sentinel errors returned by repository operations that report failures
// to the caller instead of the ambient error field.
var (
	// ErrNotAuthenticated indicates an operation that requires a session
	// was invoked without one.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Fallback messages surfaced through the error field when the transport
// fails without a server-provided message.
const (
	msgLoadEventsFailed  = "Failed to load events"
	msgCreateEventFailed = "Failed to create event"
	msgDeleteEventFailed = "Failed to delete event"
	msgJoinEventFailed   = "Failed to join event"
	msgLeaveEventFailed  = "Failed to leave event"
	msgLoginFailed       = "Login failed"
	msgSessionExpired    = "Session expired"
)

// apiMessenger is implemented by transport errors that carry a
// server-provided message suitable for display.
type apiMessenger interface {
	APIMessage() string
}

// errorMessage extracts the server-provided message from err, falling back
// to the given fixed string.
func errorMessage(err error, fallback string) string {
	var m apiMessenger
	if errors.As(err, &m) && m.APIMessage() != "" {
		return m.APIMessage()
	}
	return fallback
}
