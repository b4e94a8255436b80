package store

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iQuickDev/legacy-calendar-client/internal/model"
)

// Keys under which credentials are persisted between runs.
const (
	KeyToken       = "token"
	KeyBypassToken = "bypass_token"
)

// AuthState is the session repository's position in its lifecycle.
type AuthState int

const (
	StateAnonymous AuthState = iota
	StateAuthenticating
	StateAuthenticated
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("AuthState(%d)", int(s))
	}
}

// SessionTransport is the slice of the API contract the session repository
// depends on.
type SessionTransport interface {
	Login(ctx context.Context, creds model.Credentials) (accessToken string, err error)
	Profile(ctx context.Context, token string) (model.User, error)
	Logout(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, change model.PasswordChange) error
	UploadProfilePicture(ctx context.Context, filename string, file io.Reader) (model.User, error)
	RemoveProfilePicture(ctx context.Context) error
}

// CredentialStore persists string-valued credentials between runs.
// Get returns an empty string when the key is absent.
type CredentialStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// ProfilePatch is a partial in-memory update to the session's user record.
// Only fields the server has already confirmed may be patched this way.
type ProfilePatch struct {
	Username       *string
	ProfilePicture *string
}

// SessionRepository owns the authenticated session. Authentication
// failures always reset the session completely; a half-authenticated state
// (token without profile, or the reverse) is never observable. The bypass
// token is a secondary credential whose lifecycle is independent of login,
// except that logout wipes it along with everything else.
type SessionRepository struct {
	transport SessionTransport
	creds     CredentialStore
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	session model.Session
	state   AuthState
	loading bool
	errMsg  string
}

// NewSessionRepository constructs a session repository over the given
// transport and credential store.
func NewSessionRepository(t SessionTransport, creds CredentialStore, log zerolog.Logger) *SessionRepository {
	return &SessionRepository{
		transport: t,
		creds:     creds,
		log:       log.With().Str("component", "session").Logger(),
		now:       time.Now,
		state:     StateAnonymous,
	}
}

// Session returns a copy of the current session.
func (r *SessionRepository) Session() model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// IsAuthenticated reports whether a session is established.
func (r *SessionRepository) IsAuthenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateAuthenticated && r.session.Exists()
}

// State returns the current lifecycle state.
func (r *SessionRepository) State() AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Token returns the primary bearer credential, empty when anonymous.
func (r *SessionRepository) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Token
}

// BypassToken returns the secondary override credential, empty when unset.
func (r *SessionRepository) BypassToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.BypassToken
}

// Loading reports whether at least one operation may still be in flight.
func (r *SessionRepository) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the current error message, empty when there is none.
func (r *SessionRepository) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errMsg
}

// ClearError resets the error message without touching other state.
func (r *SessionRepository) ClearError() {
	r.mu.Lock()
	r.errMsg = ""
	r.mu.Unlock()
}

// Login authenticates with the given credentials. On success the token is
// persisted and the profile fetched before the session becomes visible; a
// failure at either step discards any partial token and fully resets the
// session.
func (r *SessionRepository) Login(ctx context.Context, creds model.Credentials) bool {
	r.mu.Lock()
	r.state = StateAuthenticating
	r.loading = true
	r.errMsg = ""
	r.mu.Unlock()
	defer r.endLoading()

	token, err := r.transport.Login(ctx, creds)
	if err != nil {
		r.failAuth("login", err, msgLoginFailed)
		return false
	}

	if err := r.creds.Set(KeyToken, token); err != nil {
		r.failAuth("persist token", err, msgLoginFailed)
		return false
	}

	user, err := r.transport.Profile(ctx, token)
	if err != nil {
		if derr := r.creds.Delete(KeyToken); derr != nil {
			r.log.Error().Err(derr).Msg("failed to discard persisted token")
		}
		r.failAuth("fetch profile", err, msgLoginFailed)
		return false
	}

	r.mu.Lock()
	r.session.Token = token
	r.session.User = user
	r.state = StateAuthenticated
	r.mu.Unlock()
	r.log.Info().Str("username", user.Username).Msg("logged in")
	return true
}

// LoadPersisted materializes a session from a previously persisted token.
// A rejected or expired token is discarded and the repository stays
// anonymous with a "Session expired" error. The bypass token, if any, is
// restored regardless of the outcome.
func (r *SessionRepository) LoadPersisted(ctx context.Context) bool {
	if bypass, err := r.creds.Get(KeyBypassToken); err == nil && bypass != "" {
		r.mu.Lock()
		r.session.BypassToken = bypass
		r.mu.Unlock()
	}

	token, err := r.creds.Get(KeyToken)
	if err != nil || token == "" {
		return false
	}

	r.mu.Lock()
	r.loading = true
	r.errMsg = ""
	r.mu.Unlock()
	defer r.endLoading()

	user, err := r.transport.Profile(ctx, token)
	if err != nil {
		if derr := r.creds.Delete(KeyToken); derr != nil {
			r.log.Error().Err(derr).Msg("failed to discard persisted token")
		}
		r.mu.Lock()
		r.session.Token = ""
		r.session.User = model.User{}
		r.state = StateAnonymous
		r.errMsg = msgSessionExpired
		r.mu.Unlock()
		r.log.Warn().Err(err).Msg("persisted token rejected")
		return false
	}

	r.mu.Lock()
	r.session.Token = token
	r.session.User = user
	r.state = StateAuthenticated
	r.mu.Unlock()
	r.log.Info().Str("username", user.Username).Msg("session restored")
	return true
}

// Logout tears the session down unconditionally: the server is notified on
// a best-effort basis, then the session, the bypass token and all persisted
// credentials are cleared. Logout always succeeds.
func (r *SessionRepository) Logout(ctx context.Context) {
	r.mu.Lock()
	token := r.session.Token
	r.mu.Unlock()

	if token != "" {
		if err := r.transport.Logout(ctx, token); err != nil {
			r.log.Warn().Err(err).Msg("logout notify failed")
		}
	}

	r.mu.Lock()
	r.session = model.Session{}
	r.state = StateAnonymous
	r.errMsg = ""
	r.mu.Unlock()

	for _, key := range []string{KeyToken, KeyBypassToken} {
		if err := r.creds.Delete(key); err != nil {
			r.log.Error().Err(err).Str("key", key).Msg("failed to clear persisted credential")
		}
	}
	r.log.Info().Msg("logged out")
}

// SetBypassToken stores and persists the secondary override credential
// without touching the primary login state.
func (r *SessionRepository) SetBypassToken(token string) error {
	if err := r.creds.Set(KeyBypassToken, token); err != nil {
		return fmt.Errorf("persist bypass token: %w", err)
	}
	r.mu.Lock()
	r.session.BypassToken = token
	r.mu.Unlock()
	return nil
}

// ClearBypassToken removes the secondary override credential.
func (r *SessionRepository) ClearBypassToken() error {
	if err := r.creds.Delete(KeyBypassToken); err != nil {
		return fmt.Errorf("clear bypass token: %w", err)
	}
	r.mu.Lock()
	r.session.BypassToken = ""
	r.mu.Unlock()
	return nil
}

// UpdateProfileLocal merges confirmed fields into the in-memory user
// record without a round-trip. It must never be used to fabricate state
// the server has not acknowledged.
func (r *SessionRepository) UpdateProfileLocal(patch ProfilePatch) {
	r.mu.Lock()
	if patch.Username != nil {
		r.session.User.Username = *patch.Username
	}
	if patch.ProfilePicture != nil {
		r.session.User.ProfilePicture = *patch.ProfilePicture
	}
	r.mu.Unlock()
}

// ChangePassword delegates to the transport. Failures are returned to the
// caller instead of being swallowed into the ambient error field, so they
// can be shown next to the password form.
func (r *SessionRepository) ChangePassword(ctx context.Context, current, updated string) error {
	if !r.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()
	defer r.endLoading()

	if err := r.transport.ChangePassword(ctx, model.PasswordChange{
		CurrentPassword: current,
		NewPassword:     updated,
	}); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	r.log.Info().Msg("password changed")
	return nil
}

// UploadProfilePicture sends a new avatar. On success the user's avatar
// reference is replaced in place, cache-busted so changed imagery
// re-renders. Failures are returned to the caller.
func (r *SessionRepository) UploadProfilePicture(ctx context.Context, filename string, file io.Reader) error {
	if !r.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()
	defer r.endLoading()

	user, err := r.transport.UploadProfilePicture(ctx, filename, file)
	if err != nil {
		return fmt.Errorf("upload profile picture: %w", err)
	}

	ref := user.ProfilePicture
	if ref != "" {
		ref = fmt.Sprintf("%s?t=%d", ref, r.now().Unix())
	}
	r.mu.Lock()
	r.session.User.ProfilePicture = ref
	r.mu.Unlock()
	return nil
}

// RemoveProfilePicture deletes the avatar server-side and clears the local
// reference. Failures are returned to the caller.
func (r *SessionRepository) RemoveProfilePicture(ctx context.Context) error {
	if !r.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()
	defer r.endLoading()

	if err := r.transport.RemoveProfilePicture(ctx); err != nil {
		return fmt.Errorf("remove profile picture: %w", err)
	}

	r.mu.Lock()
	r.session.User.ProfilePicture = ""
	r.mu.Unlock()
	return nil
}

func (r *SessionRepository) endLoading() {
	r.mu.Lock()
	r.loading = false
	r.mu.Unlock()
}

// failAuth resets the session after a failed authentication step. No
// partially authenticated state survives.
func (r *SessionRepository) failAuth(step string, err error, fallback string) {
	msg := errorMessage(err, fallback)
	r.mu.Lock()
	bypass := r.session.BypassToken
	r.session = model.Session{BypassToken: bypass}
	r.state = StateFailed
	r.errMsg = msg
	r.mu.Unlock()
	r.log.Error().Err(err).Str("step", step).Msg(msg)
}
