package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dtorcivia/trainercal/internal/aggregate"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/response"
	"github.com/dtorcivia/trainercal/internal/util"
)

// Status returns the connection state of every provider.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncer.Status(r.Context())
	if err != nil {
		util.Error("Failed to read calendar status", "error", err)
		response.WriteInternalError(w, "Failed to read calendar status")
		return
	}
	response.JSON(w, http.StatusOK, status)
}

// Sync fetches every connected provider. Any provider failure fails the
// whole call with a 502 naming the failed providers.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.Sync(r.Context())
	if err != nil {
		details := map[string]any{}
		for _, perr := range providerErrors(err) {
			details[string(perr.Provider)] = perr.Err.Error()
		}
		if len(details) == 0 {
			util.Error("Calendar sync failed", "error", err)
			response.WriteInternalError(w, "Calendar sync failed")
			return
		}
		response.WriteProviderError(w, "Calendar sync failed", details)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// providerErrors flattens a joined sync error into its provider failures.
func providerErrors(err error) []*aggregate.ProviderError {
	var out []*aggregate.ProviderError
	var perr *aggregate.ProviderError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if errors.As(e, &perr) {
				out = append(out, perr)
			}
		}
		return out
	}
	if errors.As(err, &perr) {
		out = append(out, perr)
	}
	return out
}

// ListEvents returns manual events in [from, to). Both bounds are RFC 3339
// and default to the sync window around now.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	from, to := h.config.Sync.Window(h.now())

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.WriteValidationError(w, "Invalid 'from' parameter", map[string]any{"from": v})
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.WriteValidationError(w, "Invalid 'to' parameter", map[string]any{"to": v})
			return
		}
		to = t
	}
	if !to.After(from) {
		response.WriteValidationError(w, "'to' must be after 'from'", nil)
		return
	}

	events, err := h.store.ListEvents(r.Context(), from, to)
	if err != nil {
		util.Error("Failed to list events", "error", err)
		writeStoreError(w, err, "events")
		return
	}
	if events == nil {
		events = []contract.CalendarEvent{}
	}
	response.JSON(w, http.StatusOK, contract.EventsResponse{Events: events})
}

// CreateEvent stores a new manual event.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in contract.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ev, err := h.store.CreateEvent(r.Context(), in)
	if err != nil {
		writeStoreError(w, err, "event")
		return
	}
	util.Info("Event created", "id", ev.ID, "type", ev.Type)
	response.JSON(w, http.StatusCreated, ev)
}

// UpdateEvent replaces a manual event.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var in contract.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ev, err := h.store.UpdateEvent(r.Context(), id, in)
	if err != nil {
		writeStoreError(w, err, "event")
		return
	}
	response.JSON(w, http.StatusOK, ev)
}

// DeleteEvent removes a manual event or one occurrence of a series.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteEvent(r.Context(), id); err != nil {
		writeStoreError(w, err, "event")
		return
	}
	util.Info("Event deleted", "id", id)
	response.NoContent(w)
}

func (h *Handler) authorizer(w http.ResponseWriter, r *http.Request) (contract.Provider, Authorizer, bool) {
	name := r.PathValue("provider")
	p, ok := contract.ParseProvider(name)
	if !ok {
		response.WriteError(w, http.StatusNotFound, response.ErrCodeUnknownProvider,
			fmt.Sprintf("Unknown calendar provider %q", name))
		return "", nil, false
	}
	a := h.authorizers[p]
	if a == nil || !a.IsConfigured() {
		response.WriteError(w, http.StatusServiceUnavailable, response.ErrCodeProviderNotConfigured,
			fmt.Sprintf("%s is not configured on this server", p))
		return "", nil, false
	}
	return p, a, true
}

// AuthURL starts the OAuth flow and returns the consent URL.
func (h *Handler) AuthURL(w http.ResponseWriter, r *http.Request) {
	p, a, ok := h.authorizer(w, r)
	if !ok {
		return
	}

	url, err := a.AuthURL(r.Context())
	if err != nil {
		util.Error("Failed to start authorization", "provider", p, "error", err)
		response.WriteInternalError(w, "Failed to start authorization")
		return
	}
	response.JSON(w, http.StatusOK, contract.AuthURLResponse{AuthURL: url})
}

// Disconnect deletes the stored token of a provider.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	p, a, ok := h.authorizer(w, r)
	if !ok {
		return
	}
	if err := a.Disconnect(r.Context()); err != nil {
		util.Error("Failed to disconnect provider", "provider", p, "error", err)
		response.WriteInternalError(w, "Failed to disconnect provider")
		return
	}
	util.Info("Provider disconnected", "provider", p)
	response.NoContent(w)
}
