package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iQuickDev/legacy-calendar-client/internal/model"
)

type staticTokens struct {
	token  string
	bypass string
}

func (s staticTokens) Token() string       { return s.token }
func (s staticTokens) BypassToken() string { return s.bypass }

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, zerolog.Nop())
	if tokens != nil {
		c.SetTokenSource(tokens)
	}
	return c, srv
}

func TestClient_Login(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds model.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if creds.Username != "alice" || creds.Password != "pw" {
			t.Errorf("credentials %+v", creds)
		}
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "tok-123"})
	}, nil)

	token, err := c.Login(context.Background(), model.Credentials{Username: "alice", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token %q", token)
	}
}

func TestClient_LoginRejected(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
	}, nil)

	_, err := c.Login(context.Background(), model.Credentials{Username: "alice", Password: "bad"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.APIMessage() != "invalid credentials" {
		t.Errorf("APIError %+v", apiErr)
	}
}

func TestClient_AuthHeaders(t *testing.T) {
	var gotAuth, gotBypass, gotRequestID string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotBypass = r.Header.Get("X-Bypass-Token")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Write([]byte("[]"))
	}, staticTokens{token: "tok-123", bypass: "override-1"})

	if _, err := c.FindAllEvents(context.Background()); err != nil {
		t.Fatalf("FindAllEvents: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization %q", gotAuth)
	}
	if gotBypass != "override-1" {
		t.Errorf("X-Bypass-Token %q", gotBypass)
	}
	if gotRequestID == "" {
		t.Error("no X-Request-ID sent")
	}
}

func TestClient_ProfileUsesExplicitToken(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(model.User{ID: 4, Username: "alice"})
	}, staticTokens{token: "session-token"})

	user, err := c.Profile(context.Background(), "probe-token")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("user %+v", user)
	}
	// The probe token wins over the session token source.
	if gotAuth != "Bearer probe-token" {
		t.Errorf("Authorization %q", gotAuth)
	}
}

func TestClient_FindAllEvents(t *testing.T) {
	start := time.Date(2024, time.March, 5, 18, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			t.Errorf("path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]model.Event{
			{ID: 1, Title: "party", StartTime: start, IsOpen: true},
		})
	}, nil)

	events, err := c.FindAllEvents(context.Background())
	if err != nil {
		t.Fatalf("FindAllEvents: %v", err)
	}
	if len(events) != 1 || events[0].Title != "party" || !events[0].StartTime.Equal(start) {
		t.Errorf("events %+v", events)
	}
}

func TestClient_EventMutations(t *testing.T) {
	type call struct {
		method, path string
		body         []byte
	}
	var calls []call
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, call{method: r.Method, path: r.URL.Path, body: body})
		w.WriteHeader(http.StatusNoContent)
	}, staticTokens{token: "tok"})

	ctx := context.Background()
	if err := c.CreateEvent(ctx, model.EventDraft{Title: "x"}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if err := c.DeleteEvent(ctx, 7); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if err := c.JoinEvent(ctx, 7, &model.ParticipationDraft{Features: []model.Feature{model.FeatureFood}}); err != nil {
		t.Fatalf("JoinEvent: %v", err)
	}
	if err := c.JoinEvent(ctx, 8, nil); err != nil {
		t.Fatalf("JoinEvent without draft: %v", err)
	}
	if err := c.LeaveEvent(ctx, 7); err != nil {
		t.Fatalf("LeaveEvent: %v", err)
	}

	want := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/events"},
		{http.MethodDelete, "/api/events/7"},
		{http.MethodPost, "/api/events/7/join"},
		{http.MethodPost, "/api/events/8/join"},
		{http.MethodPost, "/api/events/7/leave"},
	}
	if len(calls) != len(want) {
		t.Fatalf("%d calls, want %d", len(calls), len(want))
	}
	for i, w := range want {
		if calls[i].method != w.method || calls[i].path != w.path {
			t.Errorf("call %d: %s %s, want %s %s", i, calls[i].method, calls[i].path, w.method, w.path)
		}
	}
	if !strings.Contains(string(calls[2].body), "FOOD") {
		t.Errorf("join body %s carries no features", calls[2].body)
	}
	if len(calls[3].body) != 0 {
		t.Errorf("join without draft sent body %s", calls[3].body)
	}
}

func TestClient_UploadProfilePicture(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "me.png" {
			t.Errorf("filename %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "png-bytes" {
			t.Errorf("file content %q", data)
		}
		json.NewEncoder(w).Encode(model.User{Username: "alice", ProfilePicture: "avatars/4.png"})
	}, staticTokens{token: "tok"})

	user, err := c.UploadProfilePicture(context.Background(), "me.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("UploadProfilePicture: %v", err)
	}
	if user.ProfilePicture != "avatars/4.png" {
		t.Errorf("user %+v", user)
	}
}

func TestClient_SubscribeNotifications(t *testing.T) {
	var body map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/notifications/subscribe" {
			t.Errorf("path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	}, staticTokens{token: "tok"})

	if err := c.SubscribeNotifications(context.Background(), "device-1"); err != nil {
		t.Fatalf("SubscribeNotifications: %v", err)
	}
	if body["token"] != "device-1" {
		t.Errorf("body %v", body)
	}
}

func TestDecodeAPIError(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"string message", `{"message":"nope"}`, "nope"},
		{"validation list", `{"message":["title required","start required"]}`, "title required; start required"},
		{"no message", `{"error":"x"}`, ""},
		{"not json", `<html>`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeAPIError(http.StatusBadRequest, []byte(tc.body))
			if got.Message != tc.want {
				t.Errorf("message %q, want %q", got.Message, tc.want)
			}
			if got.Status != http.StatusBadRequest {
				t.Errorf("status %d", got.Status)
			}
		})
	}
}
