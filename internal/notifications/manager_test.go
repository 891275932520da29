package notifications

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name    string
	enabled bool
	err     error
	sent    []Message
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Enabled() bool { return f.enabled }

func (f *fakeProvider) Send(ctx context.Context, msg Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestNotifyFansOutToEnabledProviders(t *testing.T) {
	a := &fakeProvider{name: "a", enabled: true}
	b := &fakeProvider{name: "b", enabled: false}
	c := &fakeProvider{name: "c", enabled: true}
	m := NewManager(a, b, c)

	if err := m.Notify(context.Background(), Message{Title: "Sync complete"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(a.sent) != 1 || len(c.sent) != 1 {
		t.Fatalf("expected one message per enabled provider, got a=%d c=%d", len(a.sent), len(c.sent))
	}
	if len(b.sent) != 0 {
		t.Fatalf("disabled provider received %d messages", len(b.sent))
	}
	if a.sent[0].Level != LevelInfo {
		t.Fatalf("expected default level info, got %q", a.sent[0].Level)
	}
}

func TestNotifyPartialFailureIsNotAnError(t *testing.T) {
	bad := &fakeProvider{name: "bad", enabled: true, err: errors.New("boom")}
	good := &fakeProvider{name: "good", enabled: true}
	m := NewManager(bad, good)

	if err := m.Notify(context.Background(), Message{Title: "x"}); err != nil {
		t.Fatalf("expected nil error when one provider succeeds, got %v", err)
	}
}

func TestNotifyAllFailed(t *testing.T) {
	cause := errors.New("boom")
	m := NewManager(&fakeProvider{name: "bad", enabled: true, err: cause})

	err := m.Notify(context.Background(), Message{Title: "x"})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestNotifyWithoutProviders(t *testing.T) {
	if err := NewManager().Notify(context.Background(), Message{Title: "x"}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestTestProvider(t *testing.T) {
	p := &fakeProvider{name: "p", enabled: true}
	m := NewManager(p, &fakeProvider{name: "off"})

	if err := m.TestProvider(context.Background(), "p"); err != nil {
		t.Fatalf("TestProvider: %v", err)
	}
	if len(p.sent) != 1 {
		t.Fatalf("expected a test message, got %d", len(p.sent))
	}
	if err := m.TestProvider(context.Background(), "off"); err == nil {
		t.Fatal("expected error for disabled provider")
	}
	if err := m.TestProvider(context.Background(), "missing"); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}
