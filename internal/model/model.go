package model

import "time"

// Feature identifies an amenity an event offers or a participant asks for.
// The same identifiers are used for event-level flags ("has food") and
// per-participant flags ("wants food").
type Feature string

const (
	FeatureFood    Feature = "FOOD"
	FeatureWeed    Feature = "WEED"
	FeatureSleep   Feature = "SLEEP"
	FeatureAlcohol Feature = "ALCOHOL"
)

// FeatureInfo carries display metadata for a feature.
type FeatureInfo struct {
	ID    Feature
	Label string
	Icon  string
}

// Features lists all known features in display order.
var Features = []FeatureInfo{
	{ID: FeatureFood, Label: "Food", Icon: "🍗"},
	{ID: FeatureWeed, Label: "Weed", Icon: "🌿"},
	{ID: FeatureAlcohol, Label: "Alcohol", Icon: "🍾"},
	{ID: FeatureSleep, Label: "Sleep", Icon: "🌑"},
}

// ParticipationStatus is the server-side state of a participant's membership.
type ParticipationStatus string

const (
	ParticipationPending  ParticipationStatus = "PENDING"
	ParticipationAccepted ParticipationStatus = "ACCEPTED"
)

// User is the profile record returned by the API.
type User struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// UserSummary is the denormalized host embedded in an Event.
type UserSummary struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Participant is one entry of an event's participant list, in server order.
type Participant struct {
	ID             int                 `json:"id"`
	Username       string              `json:"username"`
	Status         ParticipationStatus `json:"status"`
	ProfilePicture string              `json:"profilePicture,omitempty"`
	Features       []Feature           `json:"features,omitempty"`
}

// Event is a calendar event as served by the API. Events are never
// synthesized client-side; instances originate from transport responses
// only. A zero StartTime marks an event with no usable start; such events
// are excluded from every grid cell.
type Event struct {
	ID           int           `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Location     string        `json:"location,omitempty"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime,omitzero"`
	HostID       int           `json:"hostId,omitempty"`
	Host         *UserSummary  `json:"host,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	IsOpen       bool          `json:"isOpen"`
	Features     []Feature     `json:"features,omitempty"`
}

// HasStart reports whether the event carries a usable start time.
func (e Event) HasStart() bool {
	return !e.StartTime.IsZero()
}

// EventDraft is the payload for creating a new event. The server assigns
// the identity; drafts never carry one. Shape validation (non-empty title,
// end not before start) is a server concern.
type EventDraft struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime,omitzero"`
	Participants []int     `json:"participants,omitempty"`
	IsOpen       bool      `json:"isOpen"`
}

// ParticipationDraft carries the wants-* flags sent along a join request.
type ParticipationDraft struct {
	Features []Feature `json:"features,omitempty"`
}

// Credentials is a username/password pair for login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PasswordChange is the payload for a password update.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Session is the authenticated client state. A session exists exactly when
// Token is non-empty. BypassToken is a secondary override credential
// managed independently of the login lifecycle.
type Session struct {
	Token       string `json:"token"`
	User        User   `json:"user"`
	BypassToken string `json:"-"`
}

// Exists reports whether a session is established.
func (s Session) Exists() bool {
	return s.Token != ""
}
