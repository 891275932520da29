package ntfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/notifications"
)

func TestSendPublishesJSON(t *testing.T) {
	var got ntfyMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	p := NewProvider(&config.NtfyConfig{Enabled: true, Server: srv.URL, Topic: "trainer", Token: "tk", Priority: "high"})
	err := p.Send(context.Background(), notifications.Message{
		Title: "Sync failed",
		Body:  "google: timeout",
		Level: notifications.LevelError,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if auth != "Bearer tk" {
		t.Fatalf("authorization header = %q", auth)
	}
	if got.Topic != "trainer" || got.Title != "Sync failed" || got.Message != "google: timeout" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Priority != 5 {
		t.Fatalf("expected error to raise priority to 5, got %d", got.Priority)
	}
}

func TestSendReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden topic", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewProvider(&config.NtfyConfig{Enabled: true, Server: srv.URL, Topic: "t"})
	err := p.Send(context.Background(), notifications.Message{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestEnabledRequiresTopic(t *testing.T) {
	if NewProvider(&config.NtfyConfig{Enabled: true}).Enabled() {
		t.Fatal("provider without topic should be disabled")
	}
}
