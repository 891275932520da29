// Package api provides REST API handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/notifications"
	"github.com/dtorcivia/trainercal/internal/response"
	"github.com/dtorcivia/trainercal/internal/store"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// EventStore is the subset of the store used by the handlers.
type EventStore interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]contract.CalendarEvent, error)
	CreateEvent(ctx context.Context, in contract.EventInput) (contract.CalendarEvent, error)
	UpdateEvent(ctx context.Context, id string, in contract.EventInput) (contract.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string) error
	ListStudents(ctx context.Context) ([]contract.Student, error)
	CreateStudent(ctx context.Context, in contract.StudentInput) (contract.Student, error)
}

// CalendarSyncer reports provider status and runs the unified sync.
type CalendarSyncer interface {
	Status(ctx context.Context) (contract.StatusResponse, error)
	Sync(ctx context.Context) (contract.SyncResponse, error)
}

// Authorizer drives the OAuth flow of one provider.
type Authorizer interface {
	IsConfigured() bool
	AuthURL(ctx context.Context) (string, error)
	Exchange(ctx context.Context, code, state string) error
	Disconnect(ctx context.Context) error
}

// Notifier delivers a push message to the trainer.
type Notifier interface {
	Notify(ctx context.Context, msg notifications.Message) error
}

// Handler provides REST API handlers.
type Handler struct {
	config      *config.Config
	store       EventStore
	syncer      CalendarSyncer
	authorizers map[contract.Provider]Authorizer
	notifier    Notifier
	now         func() time.Time
}

// NewHandler creates a new API handler. notifier may be nil.
func NewHandler(
	cfg *config.Config,
	st EventStore,
	syncer CalendarSyncer,
	authorizers map[contract.Provider]Authorizer,
	notifier Notifier,
) *Handler {
	return &Handler{
		config:      cfg,
		store:       st,
		syncer:      syncer,
		authorizers: authorizers,
		notifier:    notifier,
		now:         time.Now,
	}
}

// RegisterRoutes registers the authenticated API routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/calendar/status", h.Status)
	mux.HandleFunc("POST /api/calendar/sync", h.Sync)

	mux.HandleFunc("GET /api/auth/{provider}/calendar", h.AuthURL)
	mux.HandleFunc("DELETE /api/auth/{provider}/calendar", h.Disconnect)

	mux.HandleFunc("GET /api/calendar/events", h.ListEvents)
	mux.HandleFunc("POST /api/calendar/events", h.CreateEvent)
	mux.HandleFunc("PUT /api/calendar/events/{id}", h.UpdateEvent)
	mux.HandleFunc("DELETE /api/calendar/events/{id}", h.DeleteEvent)

	mux.HandleFunc("GET /api/students", h.ListStudents)
	mux.HandleFunc("POST /api/students", h.CreateStudent)
}

// RegisterPublicRoutes registers routes reached by browser redirects, which
// carry no API token.
func (h *Handler) RegisterPublicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /oauth/{provider}/callback", h.OAuthCallback)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		response.WriteValidationError(w, "Invalid JSON body", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

// writeStoreError maps store errors onto the error envelope.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		response.WriteValidationError(w, verr.Error(), map[string]any{"field": verr.Field})
	case errors.Is(err, store.ErrNotFound):
		response.WriteNotFound(w, what)
	default:
		response.WriteInternalError(w, "Failed to access "+what)
	}
}

func (h *Handler) notify(ctx context.Context, msg notifications.Message) {
	if h.notifier == nil {
		return
	}
	// Delivery problems are logged per provider.
	_ = h.notifier.Notify(ctx, msg)
}
