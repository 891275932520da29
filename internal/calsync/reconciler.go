// Package calsync keeps a merged view of the trainer's calendar: manual
// events owned by the server plus events synced from connected providers.
package calsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dtorcivia/trainercal/internal/apiclient"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/notifications"
	"github.com/dtorcivia/trainercal/internal/util"
)

// Defaults for Options.
const (
	DefaultAutoSyncInterval     = 5 * time.Minute
	DefaultStatusPollInterval   = 2 * time.Second
	DefaultAuthorizationCeiling = 120 * time.Second
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("reconciler closed")
	// ErrUnknownProvider is returned for a provider name that is not supported.
	ErrUnknownProvider = errors.New("unknown calendar provider")
	// ErrReadOnly is returned when editing a synced event.
	ErrReadOnly = errors.New("synced events are read-only")
)

// Backend is the server API used by the reconciler.
type Backend interface {
	Status(ctx context.Context) (contract.StatusResponse, error)
	AuthURL(ctx context.Context, p contract.Provider) (string, error)
	Sync(ctx context.Context) (contract.SyncResponse, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]contract.CalendarEvent, error)
	CreateEvent(ctx context.Context, in contract.EventInput) (contract.CalendarEvent, error)
	UpdateEvent(ctx context.Context, id string, in contract.EventInput) (contract.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string) error
	ListStudents(ctx context.Context) ([]contract.Student, error)
}

// Notifier shows a message to the trainer.
type Notifier interface {
	Notify(ctx context.Context, msg notifications.Message) error
}

// Opener presents an authorization URL in a secondary browser context.
type Opener func(ctx context.Context, url string) error

// ConnectionState is the client view of one provider.
type ConnectionState struct {
	Connected  bool       `json:"connected"`
	Loading    bool       `json:"loading"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}

// Snapshot is a copy of the reconciler state.
type Snapshot struct {
	Events      []contract.CalendarEvent              `json:"events"`
	Connections map[contract.Provider]ConnectionState `json:"connections"`
	Students    []contract.Student                    `json:"students"`
	LastSync    time.Time                             `json:"lastSync"`
}

// AuthResult is the outcome of an authorization attempt. Connected is false
// when the ceiling elapsed first.
type AuthResult struct {
	Provider  contract.Provider
	Connected bool
}

// Options tunes a Reconciler. Zero values take the defaults.
type Options struct {
	AutoSyncInterval     time.Duration
	StatusPollInterval   time.Duration
	AuthorizationCeiling time.Duration
	// Location interprets all-day dates and offset-less date-times.
	Location *time.Location
	Opener   Opener
	// OnChange receives a snapshot after every committed state change.
	OnChange func(Snapshot)
	// OnUnauthorized is called whenever the server answers 401.
	OnUnauthorized func()
}

func (o Options) withDefaults() Options {
	if o.AutoSyncInterval <= 0 {
		o.AutoSyncInterval = DefaultAutoSyncInterval
	}
	if o.StatusPollInterval <= 0 {
		o.StatusPollInterval = DefaultStatusPollInterval
	}
	if o.AuthorizationCeiling <= 0 {
		o.AuthorizationCeiling = DefaultAuthorizationCeiling
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Reconciler owns the merged event list and the provider connection states.
// Create it with New, call Start once, and Close when the view goes away.
type Reconciler struct {
	backend  Backend
	notifier Notifier
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	auto   *scheduler

	mu       sync.Mutex
	closed   bool
	events   []contract.CalendarEvent
	students []contract.Student
	conns    map[contract.Provider]*ConnectionState
	auths    map[contract.Provider]*Task[AuthResult]
	lastSync time.Time
}

// New creates a reconciler. notifier may be nil.
func New(backend Backend, notifier Notifier, opts Options) *Reconciler {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Reconciler{
		backend:  backend,
		notifier: notifier,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[contract.Provider]*ConnectionState, len(contract.Providers)),
		auths:    make(map[contract.Provider]*Task[AuthResult]),
	}
	for _, p := range contract.Providers {
		r.conns[p] = &ConnectionState{}
	}
	r.auto = newScheduler(opts.AutoSyncInterval, r.goTracked, func(ctx context.Context) {
		if err := r.Sync(ctx, true); err != nil && !errors.Is(err, ErrClosed) {
			util.Debug("Scheduled sync failed", "error", err)
		}
	})
	return r
}

// goTracked runs fn on a goroutine that Close waits for. It refuses once
// the reconciler is closed.
func (r *Reconciler) goTracked(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
	return true
}

func (r *Reconciler) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Start loads the roster and manual events, reads connection status, arms
// auto-sync and runs one silent sync when a provider is connected. Failures
// of individual steps are returned joined; the reconciler stays usable.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.isClosed() {
		return ErrClosed
	}

	var errs []error
	if err := r.ReloadEvents(ctx); err != nil {
		errs = append(errs, err)
	}

	conns, err := r.Status(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	if anyConnected(conns) {
		r.auto.arm(r.ctx)
		if err := r.Sync(ctx, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close cancels the auto-sync timer and every authorization poll, and waits
// for their goroutines. No state changes after Close returns.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.auto.disarm()
	r.cancel()
	r.wg.Wait()
}

func anyConnected(conns map[contract.Provider]ConnectionState) bool {
	for _, c := range conns {
		if c.Connected {
			return true
		}
	}
	return false
}

// checkAuth reports 401s to OnUnauthorized.
func (r *Reconciler) checkAuth(err error) {
	if err != nil && errors.Is(err, apiclient.ErrUnauthorized) && r.opts.OnUnauthorized != nil {
		r.opts.OnUnauthorized()
	}
}

// userMessage turns an error into text fit for a notification.
func userMessage(err error) string {
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr):
		if len(apiErr.Details) == 0 {
			return apiErr.Message
		}
		parts := make([]string, 0, len(apiErr.Details))
		for k, v := range apiErr.Details {
			parts = append(parts, fmt.Sprintf("%s: %v", k, v))
		}
		slices.Sort(parts)
		return apiErr.Message + " (" + strings.Join(parts, "; ") + ")"
	case errors.Is(err, context.DeadlineExceeded):
		return "the server did not answer in time"
	default:
		return "the server could not be reached"
	}
}

func (r *Reconciler) notify(ctx context.Context, msg notifications.Message) {
	if r.notifier == nil || r.isClosed() {
		return
	}
	if err := r.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		util.Warn("Notification failed", "title", msg.Title, "error", err)
	}
}

func (r *Reconciler) fail(ctx context.Context, title string, err error) {
	r.checkAuth(err)
	r.notify(ctx, notifications.Message{Title: title, Body: userMessage(err), Level: notifications.LevelError})
}

// snapshotLocked copies the state. r.mu must be held.
func (r *Reconciler) snapshotLocked() Snapshot {
	s := Snapshot{
		Events:      slices.Clone(r.events),
		Connections: make(map[contract.Provider]ConnectionState, len(r.conns)),
		Students:    slices.Clone(r.students),
		LastSync:    r.lastSync,
	}
	if s.Events == nil {
		s.Events = []contract.CalendarEvent{}
	}
	for p, c := range r.conns {
		cp := *c
		if c.LastSyncAt != nil {
			t := *c.LastSyncAt
			cp.LastSyncAt = &t
		}
		s.Connections[p] = cp
	}
	return s
}

// Snapshot returns a copy of the current events and connection states.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// commit applies fn under the lock and publishes the result. It returns
// ErrClosed without calling fn once the reconciler is closed.
func (r *Reconciler) commit(fn func()) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	fn()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if r.opts.OnChange != nil {
		r.opts.OnChange(snap)
	}
	return nil
}

// Sync runs the unified sync and replaces every synced event with the fresh
// set. Manual events are kept as they are. On failure the event list is left
// unchanged; an interactive (non-silent) sync notifies the trainer once.
func (r *Reconciler) Sync(ctx context.Context, silent bool) error {
	if r.isClosed() {
		return ErrClosed
	}

	resp, err := r.backend.Sync(ctx)
	if err != nil {
		if r.isClosed() {
			return ErrClosed
		}
		if silent {
			r.checkAuth(err)
			util.Warn("Silent calendar sync failed", "error", err)
		} else {
			r.fail(ctx, "Calendar sync failed", err)
		}
		return fmt.Errorf("calendar sync failed: %w", err)
	}

	fresh := MapSyncResponse(resp, r.opts.Location)
	now := time.Now()
	if err := r.commit(func() {
		r.events = Merge(r.events, fresh)
		r.lastSync = now
		if resp.Results.Google != nil {
			r.conns[contract.ProviderGoogle].LastSyncAt = &now
		}
		if resp.Results.Outlook != nil {
			r.conns[contract.ProviderOutlook].LastSyncAt = &now
		}
	}); err != nil {
		return err
	}

	util.Debug("Calendar synced", "synced_events", len(fresh), "silent", silent)
	if !silent {
		r.notify(ctx, notifications.Message{Title: "Calendar synced", Body: syncSummary(resp), Level: notifications.LevelInfo})
	}
	return nil
}

func syncSummary(resp contract.SyncResponse) string {
	var parts []string
	if g := resp.Results.Google; g != nil {
		parts = append(parts, fmt.Sprintf("%d from Google", g.Count))
	}
	if o := resp.Results.Outlook; o != nil {
		parts = append(parts, fmt.Sprintf("%d from Outlook", o.Count))
	}
	if len(parts) == 0 {
		return "No calendars connected"
	}
	return strings.Join(parts, ", ")
}

// Status reads connection status from the server and applies it. Auto-sync
// is re-armed when the set of connected providers changes.
func (r *Reconciler) Status(ctx context.Context) (map[contract.Provider]ConnectionState, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	resp, err := r.backend.Status(ctx)
	if err != nil {
		r.checkAuth(err)
		return nil, fmt.Errorf("failed to read calendar status: %w", err)
	}

	changed, err := r.applyStatus(resp)
	if err != nil {
		return nil, err
	}
	snap := r.Snapshot()
	if changed {
		r.rearm(snap.Connections)
	}
	return snap.Connections, nil
}

// applyStatus copies server connection flags. Loading is left alone.
func (r *Reconciler) applyStatus(resp contract.StatusResponse) (bool, error) {
	changed := false
	err := r.commit(func() {
		for _, p := range contract.Providers {
			st := resp.Connections[p]
			c := r.conns[p]
			if c.Connected != st.Connected {
				changed = true
			}
			c.Connected = st.Connected
			if st.LastSyncAt != nil {
				t := *st.LastSyncAt
				c.LastSyncAt = &t
			}
		}
	})
	return changed, err
}

func (r *Reconciler) rearm(conns map[contract.Provider]ConnectionState) {
	if anyConnected(conns) {
		r.auto.arm(r.ctx)
	} else {
		r.auto.disarm()
	}
}

// AutoSyncArmed reports whether the auto-sync timer is running.
func (r *Reconciler) AutoSyncArmed() bool {
	return r.auto.armed()
}

// BeginAuthorization starts the OAuth flow for p in the background: it
// fetches the consent URL, hands it to the Opener, then polls status until p
// is connected or the ceiling elapses. A second call while the first is in
// flight returns the same task.
func (r *Reconciler) BeginAuthorization(p contract.Provider) (*Task[AuthResult], error) {
	if _, ok := contract.ParseProvider(string(p)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if t := r.auths[p]; t != nil {
		r.mu.Unlock()
		return t, nil
	}
	task := newTask[AuthResult]()
	r.auths[p] = task
	r.conns[p].Loading = true
	snap := r.snapshotLocked()
	r.wg.Add(1)
	r.mu.Unlock()

	if r.opts.OnChange != nil {
		r.opts.OnChange(snap)
	}

	go func() {
		defer r.wg.Done()
		res, err := r.authorize(r.ctx, p)

		r.mu.Lock()
		delete(r.auths, p)
		r.mu.Unlock()

		task.finish(res, err)
	}()
	return task, nil
}

func (r *Reconciler) setLoading(p contract.Provider, loading bool) {
	_ = r.commit(func() { r.conns[p].Loading = loading })
}

func (r *Reconciler) authorize(ctx context.Context, p contract.Provider) (AuthResult, error) {
	res := AuthResult{Provider: p}

	url, err := r.backend.AuthURL(ctx, p)
	if err == nil && r.opts.Opener != nil {
		err = r.opts.Opener(ctx, url)
	}
	if err != nil {
		if ctx.Err() != nil {
			return res, ErrClosed
		}
		r.setLoading(p, false)
		r.fail(ctx, fmt.Sprintf("Could not connect %s", p), err)
		return res, fmt.Errorf("failed to start %s authorization: %w", p, err)
	}

	ceiling := time.NewTimer(r.opts.AuthorizationCeiling)
	defer ceiling.Stop()
	ticker := time.NewTicker(r.opts.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return res, ErrClosed

		case <-ceiling.C:
			util.Info("Authorization window elapsed", "provider", p)
			r.setLoading(p, false)
			return res, nil

		case <-ticker.C:
			status, err := r.backend.Status(ctx)
			if err != nil {
				r.checkAuth(err)
				util.Warn("Status poll failed", "provider", p, "error", err)
				continue
			}
			if !status.Connections[p].Connected {
				continue
			}

			if _, err := r.applyStatus(status); err != nil {
				return res, err
			}
			r.setLoading(p, false)
			res.Connected = true
			util.Info("Provider connected", "provider", p)

			if err := r.Sync(ctx, false); err != nil && !errors.Is(err, ErrClosed) {
				util.Debug("Post-authorization sync failed", "provider", p, "error", err)
			}
			r.rearm(r.Snapshot().Connections)
			return res, nil
		}
	}
}

// ReloadEvents replaces the manual half of the list with the server's
// events, resolving student names from the roster.
func (r *Reconciler) ReloadEvents(ctx context.Context) error {
	if r.isClosed() {
		return ErrClosed
	}

	students, err := r.backend.ListStudents(ctx)
	if err != nil {
		r.checkAuth(err)
		return fmt.Errorf("failed to load students: %w", err)
	}
	events, err := r.backend.ListEvents(ctx, time.Time{}, time.Time{})
	if err != nil {
		r.checkAuth(err)
		return fmt.Errorf("failed to load events: %w", err)
	}

	names := make(map[string]string, len(students))
	for _, s := range students {
		names[s.ID] = s.Name
	}
	manual := make([]contract.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.Source != contract.SourceManual {
			continue
		}
		if ev.StudentID != "" && ev.StudentName == "" {
			ev.StudentName = names[ev.StudentID]
		}
		manual = append(manual, ev)
	}

	return r.commit(func() {
		r.students = students
		r.events = replaceManual(r.events, manual)
	})
}

func (r *Reconciler) studentName(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if s.ID == id {
			return s.Name
		}
	}
	return ""
}

func (r *Reconciler) find(id string) (contract.CalendarEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return contract.CalendarEvent{}, false
}

func (r *Reconciler) checkWritable(id string) error {
	if ev, ok := r.find(id); ok && ev.Source != contract.SourceManual {
		return ErrReadOnly
	}
	for _, p := range contract.Providers {
		if strings.HasPrefix(id, SyncedID(p, "")) {
			return ErrReadOnly
		}
	}
	return nil
}

// CreateEvent creates a manual event on the server and adds it to the list
// only after the server confirmed it. Failures notify the trainer.
func (r *Reconciler) CreateEvent(ctx context.Context, in contract.EventInput) (contract.CalendarEvent, error) {
	if r.isClosed() {
		return contract.CalendarEvent{}, ErrClosed
	}

	ev, err := r.backend.CreateEvent(ctx, in)
	if err != nil {
		r.fail(ctx, "Could not create event", err)
		return contract.CalendarEvent{}, fmt.Errorf("failed to create event: %w", err)
	}

	if ev.Recurrence != "" {
		// Occurrences are expanded by the server.
		return ev, r.ReloadEvents(ctx)
	}

	if ev.StudentID != "" && ev.StudentName == "" {
		ev.StudentName = r.studentName(ev.StudentID)
	}
	err = r.commit(func() {
		manual := slices.DeleteFunc(slices.Clone(r.events), func(e contract.CalendarEvent) bool {
			return e.Source != contract.SourceManual
		})
		r.events = replaceManual(r.events, append(manual, ev))
	})
	return ev, err
}

// UpdateEvent replaces a manual event on the server, then in the list.
func (r *Reconciler) UpdateEvent(ctx context.Context, id string, in contract.EventInput) (contract.CalendarEvent, error) {
	if r.isClosed() {
		return contract.CalendarEvent{}, ErrClosed
	}
	if err := r.checkWritable(id); err != nil {
		return contract.CalendarEvent{}, err
	}

	ev, err := r.backend.UpdateEvent(ctx, id, in)
	if err != nil {
		r.fail(ctx, "Could not update event", err)
		return contract.CalendarEvent{}, fmt.Errorf("failed to update event: %w", err)
	}

	if ev.Recurrence != "" || r.isSeries(id) {
		return ev, r.ReloadEvents(ctx)
	}

	if ev.StudentID != "" && ev.StudentName == "" {
		ev.StudentName = r.studentName(ev.StudentID)
	}
	err = r.commit(func() {
		events := slices.Clone(r.events)
		for i := range events {
			if events[i].ID == id {
				events[i] = ev
			}
		}
		r.events = events
	})
	return ev, err
}

func (r *Reconciler) isSeries(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.events, func(e contract.CalendarEvent) bool { return e.SeriesID == id })
}

// DeleteEvent removes a manual event, a whole series, or one occurrence.
func (r *Reconciler) DeleteEvent(ctx context.Context, id string) error {
	if r.isClosed() {
		return ErrClosed
	}
	if err := r.checkWritable(id); err != nil {
		return err
	}

	if err := r.backend.DeleteEvent(ctx, id); err != nil {
		r.fail(ctx, "Could not delete event", err)
		return fmt.Errorf("failed to delete event: %w", err)
	}

	return r.commit(func() {
		r.events = slices.DeleteFunc(slices.Clone(r.events), func(e contract.CalendarEvent) bool {
			return e.Source == contract.SourceManual && (e.ID == id || e.SeriesID == id)
		})
	})
}
