package aggregate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/database"
)

type fakeConn struct{ ok bool }

func (f fakeConn) Connected(context.Context) (bool, error) { return f.ok, nil }

type fakeFetcher[E any] struct {
	events []E
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeFetcher[E]) FetchEvents(ctx context.Context, from, to time.Time) ([]E, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.events, f.err
}

func syncCfg() config.SyncConfig {
	return config.SyncConfig{ProviderTimeout: time.Second, WindowPastDays: 7, WindowFutureDays: 30}
}

func TestSyncBothProviders(t *testing.T) {
	db := database.OpenForTest(t)
	g := &fakeFetcher[contract.GoogleEvent]{events: []contract.GoogleEvent{{ID: "abc", Summary: "Dentist"}}}
	o := &fakeFetcher[contract.OutlookEvent]{events: []contract.OutlookEvent{{ID: "o1"}, {ID: "o2"}}, delay: 20 * time.Millisecond}

	s := New(db, syncCfg()).WithGoogle(fakeConn{true}, g).WithOutlook(fakeConn{true}, o)
	resp, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if resp.Results.Google == nil || resp.Results.Google.Count != 1 || resp.Results.Google.Events[0].ID != "abc" {
		t.Fatalf("unexpected google result %+v", resp.Results.Google)
	}
	if resp.Results.Outlook == nil || resp.Results.Outlook.Count != 2 {
		t.Fatalf("unexpected outlook result %+v", resp.Results.Outlook)
	}

	status, err := s.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range contract.Providers {
		st := status.Connections[p]
		if !st.Connected || st.LastSyncAt == nil {
			t.Errorf("%s: expected connected with lastSyncAt, got %+v", p, st)
		}
	}
}

func TestSyncSkipsDisconnected(t *testing.T) {
	db := database.OpenForTest(t)
	g := &fakeFetcher[contract.GoogleEvent]{}
	o := &fakeFetcher[contract.OutlookEvent]{events: []contract.OutlookEvent{{ID: "o1"}}}

	s := New(db, syncCfg()).WithGoogle(fakeConn{false}, g).WithOutlook(fakeConn{true}, o)
	resp, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results.Google != nil || g.calls.Load() != 0 {
		t.Fatal("disconnected provider must not be fetched")
	}
	if resp.Results.Outlook == nil {
		t.Fatal("expected outlook result")
	}
}

func TestSyncFailureReturnsNoPartialResults(t *testing.T) {
	db := database.OpenForTest(t)
	boom := errors.New("upstream 500")
	g := &fakeFetcher[contract.GoogleEvent]{events: []contract.GoogleEvent{{ID: "abc"}}}
	o := &fakeFetcher[contract.OutlookEvent]{err: boom}

	s := New(db, syncCfg()).WithGoogle(fakeConn{true}, g).WithOutlook(fakeConn{true}, o)
	resp, err := s.Sync(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Provider != contract.ProviderOutlook {
		t.Fatalf("expected outlook ProviderError, got %v", err)
	}
	if resp.Results.Google != nil || resp.Results.Outlook != nil {
		t.Fatal("failed sync must not carry partial results")
	}
	if g.calls.Load() != 1 {
		t.Fatal("google should still have been fetched")
	}

	var failed int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sync_runs WHERE status = 'failed' AND provider = 'outlook'`).Scan(&failed); err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Fatalf("expected one failed run recorded, got %d", failed)
	}

	status, _ := s.Status(context.Background())
	if status.Connections[contract.ProviderOutlook].LastSyncAt != nil {
		t.Fatal("failed runs must not set lastSyncAt")
	}
}

func TestSyncProviderTimeout(t *testing.T) {
	db := database.OpenForTest(t)
	cfg := syncCfg()
	cfg.ProviderTimeout = 30 * time.Millisecond
	g := &fakeFetcher[contract.GoogleEvent]{delay: time.Second}

	s := New(db, cfg).WithGoogle(fakeConn{true}, g)
	start := time.Now()
	_, err := s.Sync(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("sync was not bounded by the provider timeout")
	}
}

func TestStatusWithoutProviders(t *testing.T) {
	s := New(database.OpenForTest(t), syncCfg())
	status, err := s.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(status.Connections) != 2 || status.Connections[contract.ProviderGoogle].Connected {
		t.Fatalf("unexpected status %+v", status)
	}
}
