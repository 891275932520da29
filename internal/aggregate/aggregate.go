// Package aggregate runs the unified provider sync and reports connection status.
package aggregate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/database"
	"github.com/dtorcivia/trainercal/internal/util"
)

// Fetcher reads provider-native events in a time window.
type Fetcher[E any] interface {
	FetchEvents(ctx context.Context, from, to time.Time) ([]E, error)
}

// Connection reports whether credentials are stored for a provider.
type Connection interface {
	Connected(ctx context.Context) (bool, error)
}

// ProviderError is the failure of one provider during a sync.
type ProviderError struct {
	Provider contract.Provider
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type source[E any] struct {
	conn    Connection
	fetcher Fetcher[E]
}

// Syncer fetches every connected provider and records the outcome.
type Syncer struct {
	db      *database.DB
	cfg     config.SyncConfig
	google  *source[contract.GoogleEvent]
	outlook *source[contract.OutlookEvent]
	now     func() time.Time
}

// New creates a Syncer with no providers attached.
func New(db *database.DB, cfg config.SyncConfig) *Syncer {
	return &Syncer{db: db, cfg: cfg, now: time.Now}
}

// WithGoogle attaches the Google provider.
func (s *Syncer) WithGoogle(conn Connection, f Fetcher[contract.GoogleEvent]) *Syncer {
	s.google = &source[contract.GoogleEvent]{conn: conn, fetcher: f}
	return s
}

// WithOutlook attaches the Outlook provider.
func (s *Syncer) WithOutlook(conn Connection, f Fetcher[contract.OutlookEvent]) *Syncer {
	s.outlook = &source[contract.OutlookEvent]{conn: conn, fetcher: f}
	return s
}

func connected(ctx context.Context, conn Connection) (bool, error) {
	if conn == nil {
		return false, nil
	}
	return conn.Connected(ctx)
}

// Status returns the connection state of every provider. Unattached
// providers are reported as disconnected.
func (s *Syncer) Status(ctx context.Context) (contract.StatusResponse, error) {
	resp := contract.StatusResponse{Connections: make(map[contract.Provider]contract.ConnectionStatus, 2)}

	conns := map[contract.Provider]Connection{}
	if s.google != nil {
		conns[contract.ProviderGoogle] = s.google.conn
	}
	if s.outlook != nil {
		conns[contract.ProviderOutlook] = s.outlook.conn
	}

	for _, p := range contract.Providers {
		ok, err := connected(ctx, conns[p])
		if err != nil {
			return resp, fmt.Errorf("failed to read %s status: %w", p, err)
		}
		st := contract.ConnectionStatus{Connected: ok}
		if ok {
			last, err := s.lastSuccess(ctx, p)
			if err != nil {
				return resp, err
			}
			st.LastSyncAt = last
		}
		resp.Connections[p] = st
	}
	return resp, nil
}

// Sync fetches all connected providers concurrently, each bounded by the
// provider timeout. It answers only once every fetch has finished, and any
// failure fails the whole call.
func (s *Syncer) Sync(ctx context.Context) (contract.SyncResponse, error) {
	var resp contract.SyncResponse
	now := s.now()
	from, to := s.cfg.Window(now)
	runID := uuid.NewString()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(p contract.Provider, err error) {
		mu.Lock()
		errs = append(errs, &ProviderError{Provider: p, Err: err})
		mu.Unlock()
	}

	if s.google != nil {
		ok, err := connected(ctx, s.google.conn)
		if err != nil {
			return resp, fmt.Errorf("failed to read google status: %w", err)
		}
		if ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				events, err := runOne(ctx, s, runID, contract.ProviderGoogle, s.google.fetcher, from, to)
				if err != nil {
					fail(contract.ProviderGoogle, err)
					return
				}
				resp.Results.Google = &contract.GoogleSyncResult{Events: events, Count: len(events)}
			}()
		}
	}

	if s.outlook != nil {
		ok, err := connected(ctx, s.outlook.conn)
		if err != nil {
			wg.Wait()
			return contract.SyncResponse{}, fmt.Errorf("failed to read outlook status: %w", err)
		}
		if ok {
			wg.Add(1)
			go func() {
				defer wg.Done()
				events, err := runOne(ctx, s, runID, contract.ProviderOutlook, s.outlook.fetcher, from, to)
				if err != nil {
					fail(contract.ProviderOutlook, err)
					return
				}
				resp.Results.Outlook = &contract.OutlookSyncResult{Events: events, Count: len(events)}
			}()
		}
	}

	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return contract.SyncResponse{}, err
	}
	return resp, nil
}

func runOne[E any](ctx context.Context, s *Syncer, runID string, p contract.Provider, f Fetcher[E], from, to time.Time) ([]E, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()

	started := s.now()
	events, err := f.FetchEvents(ctx, from, to)
	if events == nil {
		events = []E{}
	}
	s.record(runID, p, started, len(events), err)

	if err != nil {
		util.Warn("Provider fetch failed", "provider", p, "error", err)
		return nil, err
	}
	util.Info("Provider fetch completed", "provider", p, "count", len(events), "duration", s.now().Sub(started).String())
	return events, nil
}

// record writes a sync_runs row. It uses a fresh context so a cancelled
// request still leaves a trace.
func (s *Syncer) record(runID string, p contract.Provider, started time.Time, count int, fetchErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := database.SyncStatusOK
	var errText sql.NullString
	if fetchErr != nil {
		status = database.SyncStatusFailed
		count = 0
		errText = sql.NullString{String: util.TruncateString(fetchErr.Error(), 500), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, provider, status, event_count, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, string(p), status, count, errText,
		util.SQLiteTimestamp(started), util.SQLiteTimestamp(s.now())); err != nil {
		util.Error("Failed to record sync run", "provider", p, "error", err)
	}
}

func (s *Syncer) lastSuccess(ctx context.Context, p contract.Provider) (*time.Time, error) {
	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, `
		SELECT MAX(finished_at) FROM sync_runs WHERE provider = ? AND status = ?
	`, string(p), database.SyncStatusOK).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to read last sync: %w", err)
	}
	if !raw.Valid {
		return nil, nil
	}
	t, err := util.ParseSQLiteTimestamp(raw.String)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}
