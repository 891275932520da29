package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dtorcivia/trainercal/internal/aggregate"
	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/notifications"
	"github.com/dtorcivia/trainercal/internal/oauth"
	"github.com/dtorcivia/trainercal/internal/response"
	"github.com/dtorcivia/trainercal/internal/store"
)

type fakeStore struct {
	from, to time.Time
	events   []contract.CalendarEvent
	created  contract.EventInput
	deleted  string
	students []contract.Student
	err      error
}

func (f *fakeStore) ListEvents(ctx context.Context, from, to time.Time) ([]contract.CalendarEvent, error) {
	f.from, f.to = from, to
	return f.events, f.err
}

func (f *fakeStore) CreateEvent(ctx context.Context, in contract.EventInput) (contract.CalendarEvent, error) {
	f.created = in
	if f.err != nil {
		return contract.CalendarEvent{}, f.err
	}
	return contract.CalendarEvent{ID: "ev1", Title: in.Title, Start: in.Start, End: in.End, Type: in.Type, Source: contract.SourceManual}, nil
}

func (f *fakeStore) UpdateEvent(ctx context.Context, id string, in contract.EventInput) (contract.CalendarEvent, error) {
	if f.err != nil {
		return contract.CalendarEvent{}, f.err
	}
	return contract.CalendarEvent{ID: id, Title: in.Title, Type: in.Type, Source: contract.SourceManual}, nil
}

func (f *fakeStore) DeleteEvent(ctx context.Context, id string) error {
	f.deleted = id
	return f.err
}

func (f *fakeStore) ListStudents(ctx context.Context) ([]contract.Student, error) {
	return f.students, f.err
}

func (f *fakeStore) CreateStudent(ctx context.Context, in contract.StudentInput) (contract.Student, error) {
	if f.err != nil {
		return contract.Student{}, f.err
	}
	return contract.Student{ID: "st1", Name: in.Name}, nil
}

type fakeSyncer struct {
	status contract.StatusResponse
	result contract.SyncResponse
	err    error
}

func (f *fakeSyncer) Status(ctx context.Context) (contract.StatusResponse, error) {
	return f.status, f.err
}

func (f *fakeSyncer) Sync(ctx context.Context) (contract.SyncResponse, error) {
	return f.result, f.err
}

type fakeAuthorizer struct {
	configured   bool
	exchangeErr  error
	code, state  string
	disconnected bool
}

func (f *fakeAuthorizer) IsConfigured() bool { return f.configured }

func (f *fakeAuthorizer) AuthURL(ctx context.Context) (string, error) {
	return "https://accounts.example.com/auth?state=s1", nil
}

func (f *fakeAuthorizer) Exchange(ctx context.Context, code, state string) error {
	f.code, f.state = code, state
	return f.exchangeErr
}

func (f *fakeAuthorizer) Disconnect(ctx context.Context) error {
	f.disconnected = true
	return nil
}

type fakeNotifier struct{ msgs []notifications.Message }

func (f *fakeNotifier) Notify(ctx context.Context, msg notifications.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

func newTestHandler(st *fakeStore, sy *fakeSyncer, google *fakeAuthorizer) (*Handler, *http.ServeMux) {
	cfg := config.Defaults()
	auths := map[contract.Provider]Authorizer{}
	if google != nil {
		auths[contract.ProviderGoogle] = google
	}
	h := NewHandler(cfg, st, sy, auths, &fakeNotifier{})
	h.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	h.RegisterPublicRoutes(mux)
	return h, mux
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) response.APIError {
	t.Helper()
	var env response.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return env.Error
}

func TestListEventsDefaultsToSyncWindow(t *testing.T) {
	st := &fakeStore{}
	h, mux := newTestHandler(st, &fakeSyncer{}, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/calendar/events", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	wantFrom, wantTo := h.config.Sync.Window(h.now())
	if !st.from.Equal(wantFrom) || !st.to.Equal(wantTo) {
		t.Fatalf("window mismatch: got %v - %v", st.from, st.to)
	}
	if !strings.Contains(rr.Body.String(), `"events":[]`) {
		t.Fatalf("expected empty events array, got %s", rr.Body.String())
	}
}

func TestListEventsQueryRange(t *testing.T) {
	st := &fakeStore{}
	_, mux := newTestHandler(st, &fakeSyncer{}, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET",
		"/api/calendar/events?from=2026-03-01T00:00:00Z&to=2026-04-01T00:00:00Z", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if st.from.Month() != time.March || st.to.Month() != time.April {
		t.Fatalf("range not parsed: %v - %v", st.from, st.to)
	}

	for _, q := range []string{"from=yesterday", "from=2026-04-01T00:00:00Z&to=2026-03-01T00:00:00Z"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/calendar/events?"+q, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestCreateEvent(t *testing.T) {
	st := &fakeStore{}
	_, mux := newTestHandler(st, &fakeSyncer{}, nil)

	body := `{"title":"Leg day","start":"2026-03-11T09:00:00Z","end":"2026-03-11T10:00:00Z","type":"training","studentId":"st1"}`
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/calendar/events", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if st.created.Title != "Leg day" || st.created.StudentID != "st1" {
		t.Fatalf("input not passed through: %+v", st.created)
	}
	var ev contract.CalendarEvent
	if err := json.NewDecoder(rr.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID != "ev1" || ev.Source != contract.SourceManual {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestCreateEventRejectsUnknownFields(t *testing.T) {
	_, mux := newTestHandler(&fakeStore{}, &fakeSyncer{}, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/calendar/events", strings.NewReader(`{"title":"x","source":"google"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &store.ValidationError{Field: "title", Message: "required"}, http.StatusBadRequest, response.ErrCodeValidationError},
		{"not found", store.ErrNotFound, http.StatusNotFound, response.ErrCodeNotFound},
		{"internal", errors.New("disk full"), http.StatusInternalServerError, response.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux := newTestHandler(&fakeStore{err: tt.err}, &fakeSyncer{}, nil)

			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest("PUT", "/api/calendar/events/ev1",
				strings.NewReader(`{"title":"x","type":"personal"}`)))
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			if got := decodeError(t, rr); got.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got.Code)
			}
		})
	}
}

func TestDeleteEvent(t *testing.T) {
	st := &fakeStore{}
	_, mux := newTestHandler(st, &fakeSyncer{}, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("DELETE", "/api/calendar/events/series1_20260311T090000Z", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if st.deleted != "series1_20260311T090000Z" {
		t.Fatalf("deleted id = %q", st.deleted)
	}
}

func TestSyncSuccess(t *testing.T) {
	sy := &fakeSyncer{result: contract.SyncResponse{Results: contract.SyncResults{
		Google: &contract.GoogleSyncResult{Events: []contract.GoogleEvent{{ID: "abc", Summary: "Dentist"}}, Count: 1},
	}}}
	_, mux := newTestHandler(&fakeStore{}, sy, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/calendar/sync", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp contract.SyncResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Results.Google == nil || resp.Results.Google.Count != 1 || resp.Results.Outlook != nil {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
}

func TestSyncProviderFailureIs502(t *testing.T) {
	err := errors.Join(
		&aggregate.ProviderError{Provider: contract.ProviderOutlook, Err: fmt.Errorf("graph: %w", context.DeadlineExceeded)},
	)
	_, mux := newTestHandler(&fakeStore{}, &fakeSyncer{err: err}, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/calendar/sync", nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	apiErr := decodeError(t, rr)
	if apiErr.Code != response.ErrCodeProviderError {
		t.Fatalf("expected PROVIDER_ERROR, got %s", apiErr.Code)
	}
	if _, ok := apiErr.Details["outlook"]; !ok {
		t.Fatalf("expected outlook in details, got %v", apiErr.Details)
	}
}

func TestAuthURL(t *testing.T) {
	_, mux := newTestHandler(&fakeStore{}, &fakeSyncer{}, &fakeAuthorizer{configured: true})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/auth/google/calendar", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp contract.AuthURLResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !strings.HasPrefix(resp.AuthURL, "https://accounts.example.com/") {
		t.Fatalf("authUrl = %q", resp.AuthURL)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/auth/outlook/calendar", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured provider: expected 503, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/auth/icloud/calendar", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown provider: expected 404, got %d", rr.Code)
	}
}

func TestOAuthCallback(t *testing.T) {
	auth := &fakeAuthorizer{configured: true}
	h, mux := newTestHandler(&fakeStore{}, &fakeSyncer{}, auth)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/oauth/google/callback?code=c1&state=s1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if auth.code != "c1" || auth.state != "s1" {
		t.Fatalf("exchange got code=%q state=%q", auth.code, auth.state)
	}
	if n := h.notifier.(*fakeNotifier); len(n.msgs) != 1 {
		t.Fatalf("expected one connect notification, got %d", len(n.msgs))
	}
}

func TestOAuthCallbackInvalidState(t *testing.T) {
	auth := &fakeAuthorizer{configured: true, exchangeErr: oauth.ErrInvalidState}
	_, mux := newTestHandler(&fakeStore{}, &fakeSyncer{}, auth)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/oauth/google/callback?code=c1&state=stale", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := decodeError(t, rr); got.Code != response.ErrCodeInvalidState {
		t.Fatalf("expected INVALID_STATE, got %s", got.Code)
	}
}

func TestOAuthCallbackDeclined(t *testing.T) {
	auth := &fakeAuthorizer{configured: true}
	_, mux := newTestHandler(&fakeStore{}, &fakeSyncer{}, auth)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/oauth/google/callback?error=access_denied", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if auth.code != "" {
		t.Fatal("exchange must not run when consent was declined")
	}
}

func TestDisconnect(t *testing.T) {
	auth := &fakeAuthorizer{configured: true}
	_, mux := newTestHandler(&fakeStore{}, &fakeSyncer{}, auth)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("DELETE", "/api/auth/google/calendar", nil))
	if rr.Code != http.StatusNoContent || !auth.disconnected {
		t.Fatalf("expected disconnect, got %d", rr.Code)
	}
}

func TestStudents(t *testing.T) {
	st := &fakeStore{students: []contract.Student{{ID: "st1", Name: "Ana"}}}
	_, mux := newTestHandler(st, &fakeSyncer{}, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/students", nil))
	var list contract.StudentsResponse
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list.Students) != 1 || list.Students[0].Name != "Ana" {
		t.Fatalf("unexpected students: %+v", list)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/students", bytes.NewBufferString(`{"name":"Bruno"}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
}
