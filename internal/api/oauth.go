package api

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/dtorcivia/trainercal/internal/notifications"
	"github.com/dtorcivia/trainercal/internal/oauth"
	"github.com/dtorcivia/trainercal/internal/response"
	"github.com/dtorcivia/trainercal/internal/util"
)

const callbackPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>trainercal</title></head>
<body><p>%s</p></body></html>
`

// OAuthCallback completes the consent flow started by AuthURL. The page it
// renders is shown in the secondary browser window, which the client then
// stops watching once status reports the provider as connected.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	p, a, ok := h.authorizer(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		util.Warn("Authorization declined", "provider", p, "error", e)
		response.WriteErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationError,
			"Authorization was not granted", map[string]any{"error": e, "description": q.Get("error_description")})
		return
	}

	code := q.Get("code")
	if code == "" {
		response.WriteValidationError(w, "Missing authorization code", nil)
		return
	}

	if err := a.Exchange(r.Context(), code, q.Get("state")); err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			response.WriteError(w, http.StatusBadRequest, response.ErrCodeInvalidState,
				"Authorization link expired or already used; start again")
			return
		}
		util.Error("OAuth exchange failed", "provider", p, "error", err)
		response.WriteProviderError(w, "Failed to complete authorization", map[string]any{"provider": string(p)})
		return
	}

	h.notify(r.Context(), notifications.Message{
		Title: fmt.Sprintf("%s Calendar connected", displayName(string(p))),
		Body:  "Events will appear after the next sync.",
		Level: notifications.LevelInfo,
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, callbackPage, html.EscapeString(
		fmt.Sprintf("%s Calendar connected. You can close this window.", displayName(string(p)))))
}

func displayName(p string) string {
	switch p {
	case "google":
		return "Google"
	case "outlook":
		return "Outlook"
	default:
		return p
	}
}
