// Package notify registers the device for push notifications and decodes
// incoming push payloads. Delivery itself (the messaging service and its
// service worker) is outside this client; only the registration call and
// the payload shape belong here.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PushTokenKey is the credential-store key for the persisted device token.
const PushTokenKey = "push_token"

// Transport is the slice of the API contract used for push registration.
type Transport interface {
	SubscribeNotifications(ctx context.Context, pushToken string) error
}

// TokenStore persists the device token between runs.
type TokenStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Registrar obtains a stable device token and registers it server-side.
type Registrar struct {
	transport Transport
	tokens    TokenStore
	log       zerolog.Logger
}

// NewRegistrar constructs a registrar over the given transport and store.
func NewRegistrar(t Transport, tokens TokenStore, log zerolog.Logger) *Registrar {
	return &Registrar{
		transport: t,
		tokens:    tokens,
		log:       log.With().Str("component", "notify").Logger(),
	}
}

// Register ensures a device token exists (generating and persisting one on
// first use) and subscribes it with the server. The token is returned so
// callers can display or log it.
func (r *Registrar) Register(ctx context.Context) (string, error) {
	token, err := r.tokens.Get(PushTokenKey)
	if err != nil {
		return "", fmt.Errorf("load push token: %w", err)
	}
	if token == "" {
		token = uuid.NewString()
		if err := r.tokens.Set(PushTokenKey, token); err != nil {
			return "", fmt.Errorf("persist push token: %w", err)
		}
		r.log.Debug().Msg("generated new device token")
	}

	if err := r.transport.SubscribeNotifications(ctx, token); err != nil {
		return "", fmt.Errorf("subscribe notifications: %w", err)
	}
	r.log.Info().Msg("push subscription registered")
	return token, nil
}

// Payload is the shape of a push message:
// {notification:{title,body}, data:{image?, eventId?}}.
type Payload struct {
	Notification Notification `json:"notification"`
	Data         Data         `json:"data"`
}

// Notification is the user-visible part of a push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Data carries the optional deep-link fields. Push data values arrive as
// strings, but a numeric eventId is tolerated too.
type Data struct {
	Image   string `json:"image,omitempty"`
	EventID flexID `json:"eventId,omitempty"`
}

// EventID resolves the payload's deep-link target in the event identity
// space. ok is false when the payload carried none.
func (p Payload) EventID() (id int, ok bool) {
	return p.Data.EventID.value()
}

// ParsePayload decodes a push message body.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("parse push payload: %w", err)
	}
	return p, nil
}

// flexID is an event ID that decodes from either a JSON string or number.
type flexID struct {
	raw string
}

func (f *flexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.raw = s
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		f.raw = strconv.Itoa(n)
		return nil
	}
	return fmt.Errorf("eventId is neither string nor number: %s", trimmed)
}

func (f flexID) value() (int, bool) {
	if f.raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(f.raw)
	if err != nil {
		return 0, false
	}
	return id, true
}
