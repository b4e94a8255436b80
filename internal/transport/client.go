// Package transport implements the HTTP client for the Legacy Calendar
// API. It is the only package that knows URLs, headers and status codes;
// the repositories consume it through their own narrow interfaces.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iQuickDev/legacy-calendar-client/internal/model"
)

// TokenSource yields the credentials to attach to outgoing requests. The
// session repository implements it; tokens are read at request time so the
// client always sees the current session.
type TokenSource interface {
	Token() string
	BypassToken() string
}

// APIError is a non-2xx response from the API, carrying the
// server-provided message when one was present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
}

// APIMessage returns the server-provided message, empty when the response
// carried none.
func (e *APIError) APIMessage() string {
	return e.Message
}

// Client talks to the Legacy Calendar API. All endpoints live under the
// /api prefix of the configured base URL.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
	tokens  TokenSource
}

// NewClient constructs a client for the API rooted at baseURL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api",
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.With().Str("component", "transport").Logger(),
	}
}

// SetTokenSource attaches the source of bearer credentials. Requests made
// without one are unauthenticated.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (string, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", creds, &out, ""); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &APIError{Status: http.StatusOK, Message: "login response carried no access token"}
	}
	return out.AccessToken, nil
}

// Profile fetches the profile belonging to the given bearer token. The
// token is explicit so a persisted token can be probed before any session
// exists.
func (c *Client) Profile(ctx context.Context, token string) (model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &user, token); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Logout notifies the server that the given token is being abandoned.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, token)
}

// ChangePassword updates the authenticated user's password.
func (c *Client) ChangePassword(ctx context.Context, change model.PasswordChange) error {
	return c.doJSON(ctx, http.MethodPatch, "/users/me/password", change, nil, "")
}

// FindAllEvents returns every event visible to the authenticated user.
func (c *Client) FindAllEvents(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := c.doJSON(ctx, http.MethodGet, "/events", nil, &events, ""); err != nil {
		return nil, err
	}
	return events, nil
}

// CreateEvent submits a new event draft.
func (c *Client) CreateEvent(ctx context.Context, draft model.EventDraft) error {
	return c.doJSON(ctx, http.MethodPost, "/events", draft, nil, "")
}

// DeleteEvent deletes the event with the given identity.
func (c *Client) DeleteEvent(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/events/%d", id), nil, nil, "")
}

// JoinEvent requests membership in an event, optionally carrying wants-*
// flags.
func (c *Client) JoinEvent(ctx context.Context, id int, draft *model.ParticipationDraft) error {
	var body any
	if draft != nil {
		body = draft
	}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/events/%d/join", id), body, nil, "")
}

// LeaveEvent withdraws the authenticated user from an event.
func (c *Client) LeaveEvent(ctx context.Context, id int) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/events/%d/leave", id), nil, nil, "")
}

// UploadProfilePicture sends a new avatar as multipart form data and
// returns the updated profile.
func (c *Client) UploadProfilePicture(ctx context.Context, filename string, file io.Reader) (model.User, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return model.User{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return model.User{}, fmt.Errorf("read picture: %w", err)
	}
	if err := mw.Close(); err != nil {
		return model.User{}, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/users/me/picture", &buf, "")
	if err != nil {
		return model.User{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var user model.User
	if err := c.send(req, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// RemoveProfilePicture deletes the authenticated user's avatar.
func (c *Client) RemoveProfilePicture(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/users/me/picture", nil, nil, "")
}

// SubscribeNotifications registers a device push token with the server.
func (c *Client) SubscribeNotifications(ctx context.Context, pushToken string) error {
	body := struct {
		Token string `json:"token"`
	}{Token: pushToken}
	return c.doJSON(ctx, http.MethodPost, "/notifications/subscribe", body, nil, "")
}

// doJSON performs a JSON round-trip. A non-empty overrideToken replaces
// the token source for this request; out may be nil when no response body
// is expected.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, overrideToken string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader, overrideToken)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, overrideToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	token := overrideToken
	var bypass string
	if token == "" && c.tokens != nil {
		token = c.tokens.Token()
	}
	if c.tokens != nil {
		bypass = c.tokens.BypassToken()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if bypass != "" {
		req.Header.Set("X-Bypass-Token", bypass)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	requestID := req.Header.Get("X-Request-ID")
	c.log.Debug().
		Str("method", req.Method).
		Str("path", strings.TrimPrefix(req.URL.Path, "/api")).
		Str("request_id", requestID).
		Msg("request")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp.StatusCode, data)
		c.log.Debug().
			Int("status", resp.StatusCode).
			Str("request_id", requestID).
			Msg("request failed")
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeAPIError extracts the server's message field, which may be a
// string or a list of validation messages.
func decodeAPIError(status int, body []byte) *APIError {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Message == nil {
		return apiErr
	}

	var single string
	if json.Unmarshal(payload.Message, &single) == nil {
		apiErr.Message = single
		return apiErr
	}
	var many []string
	if json.Unmarshal(payload.Message, &many) == nil {
		apiErr.Message = strings.Join(many, "; ")
	}
	return apiErr
}
