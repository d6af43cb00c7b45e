// Package liveview maintains ordered, filtered in-memory mirrors of remote
// tables. A View combines one bulk fetch with a stream of row-level change
// events and reconciles them into a snapshot the HTTP layer can read at any
// time.
package liveview

import (
	"context"
	"fmt"
	"sync"

	"github.com/emberhealth/clinicflow/internal/observability/metrics"
	"github.com/emberhealth/clinicflow/pkg/logging"
)

// Querier is the one-shot read capability a view fetches its initial
// snapshot through.
type Querier interface {
	Query(ctx context.Context, req QueryRequest) ([]Row, error)
}

// QueryRequest describes one bulk read against a remote table.
type QueryRequest struct {
	Table  string
	Fields []string
	Filter FilterSpec
	Order  *OrderSpec
	Limit  int
}

// Subscription is one open change-event stream. Close is idempotent.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Subscriber opens change-event streams scoped to a whole table. Event
// filtering happens client-side; the backend is never asked to pre-filter.
type Subscriber interface {
	Subscribe(ctx context.Context, table string) (Subscription, error)
}

// State is the lifecycle of a view. Transitions are strictly
// Idle -> Fetching -> Ready | Failed; there is no retry path, a failed
// view is rebuilt from scratch.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options fix a view's shape for its whole lifetime. Changing any of them
// means closing the view and constructing a new one.
type Options struct {
	Table    string
	Fields   []string
	Filter   FilterSpec
	Order    *OrderSpec
	Limit    int
	KeyField string
}

// View mirrors one filtered, ordered slice of a remote table. All event
// application happens on a single goroutine; readers get copied snapshots
// and never observe a torn state.
type View struct {
	opts    Options
	querier Querier
	source  Subscriber
	logger  *logging.Logger
	metrics *metrics.ViewMetrics

	mu    sync.RWMutex
	state State
	rows  []Row
	err   error

	sub       Subscription
	updates   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewView validates the options and prepares a view. Nothing touches the
// backend until Start.
func NewView(opts Options, querier Querier, source Subscriber, logger *logging.Logger, m *metrics.ViewMetrics) (*View, error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("liveview: table name required")
	}
	if querier == nil {
		return nil, fmt.Errorf("liveview: querier required")
	}
	if source == nil {
		return nil, fmt.Errorf("liveview: subscriber required")
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("liveview: limit must not be negative")
	}
	if err := opts.Filter.Validate(); err != nil {
		return nil, err
	}
	if opts.KeyField == "" {
		opts.KeyField = DefaultKeyField
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &View{
		opts:    opts,
		querier: querier,
		source:  source,
		logger:  logger,
		metrics: m,
		state:   StateIdle,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

type fetchResult struct {
	rows []Row
	err  error
}

// Start opens the subscription and launches the fetch. The subscription is
// established before the fetch is issued, so events racing the snapshot are
// buffered and replayed once the snapshot lands rather than lost.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.state != StateIdle {
		v.mu.Unlock()
		return fmt.Errorf("liveview: view for %q already started", v.opts.Table)
	}
	v.state = StateFetching
	v.mu.Unlock()

	sub, err := v.source.Subscribe(ctx, v.opts.Table)
	if err != nil {
		// Degraded but not fatal: the snapshot is still correct as of
		// fetch time, it just stops updating.
		v.logger.Warn("subscription failed, view will not receive updates",
			"table", v.opts.Table, "error", err)
	} else {
		v.mu.Lock()
		v.sub = sub
		v.mu.Unlock()
		select {
		case <-v.done:
			// Closed while the subscription was being opened; Close saw a
			// nil sub, so tear this one down here. Close is idempotent on
			// subscriptions, the overlap is harmless.
			_ = sub.Close()
		default:
		}
	}

	fetched := make(chan fetchResult, 1)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		rows, err := v.querier.Query(ctx, QueryRequest{
			Table:  v.opts.Table,
			Fields: v.opts.Fields,
			Filter: v.opts.Filter,
			Order:  v.opts.Order,
			Limit:  v.opts.Limit,
		})
		fetched <- fetchResult{rows: rows, err: err}
	}()

	v.wg.Add(1)
	go v.run(ctx, fetched)
	return nil
}

// run is the single reconciliation goroutine. Nothing else mutates rows.
func (v *View) run(ctx context.Context, fetched chan fetchResult) {
	defer v.wg.Done()

	v.mu.RLock()
	sub := v.sub
	v.mu.RUnlock()

	var events <-chan ChangeEvent
	if sub != nil {
		events = sub.Events()
	}

	var pending []ChangeEvent
	loading := true

	for {
		select {
		case <-v.done:
			return
		case <-ctx.Done():
			return
		case res := <-fetched:
			fetched = nil
			loading = false
			if res.err != nil {
				v.metrics.ObserveFetchFailure()
				v.logger.Error("initial fetch failed", "table", v.opts.Table, "error", res.err)
				v.fail(fmt.Errorf("liveview: fetch %s: %w", v.opts.Table, res.err))
				pending = nil
				continue
			}
			v.applySnapshot(res.rows)
			v.metrics.ObserveReplayDepth(len(pending))
			for _, ev := range pending {
				v.applyEvent(ev)
			}
			pending = nil
			v.notify()
		case ev, ok := <-events:
			if !ok {
				// Stream dropped: no auto-reconnect, the snapshot stays
				// correct as of fetch time.
				v.logger.Warn("change stream closed", "table", v.opts.Table)
				events = nil
				continue
			}
			if loading {
				pending = append(pending, ev)
				continue
			}
			if v.State() == StateFailed {
				continue
			}
			if v.applyEvent(ev) {
				v.notify()
			}
		}
	}
}

func (v *View) applySnapshot(rows []Row) {
	copied := make([]Row, 0, len(rows))
	for _, r := range rows {
		copied = append(copied, r.Clone())
	}
	sortRows(copied, v.opts.Order)

	v.mu.Lock()
	v.state = StateReady
	v.rows = copied
	v.err = nil
	v.mu.Unlock()
	v.metrics.ObserveSnapshotSize(v.opts.Table, len(copied))
}

func (v *View) fail(err error) {
	v.mu.Lock()
	v.state = StateFailed
	v.rows = nil
	v.err = err
	v.mu.Unlock()
	v.notify()
}

// applyEvent reconciles one change event into the collection and reports
// whether the collection changed. Events are keyed by the primary-key
// field; an event without one is dropped.
func (v *View) applyEvent(ev ChangeEvent) bool {
	key, ok := ev.keyValue(v.opts.KeyField)
	if !ok {
		v.metrics.ObserveMalformed()
		v.logger.Debug("dropping change event without primary key",
			"table", v.opts.Table, "kind", ev.Kind)
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var changed bool
	switch ev.Kind {
	case EventInsert, EventUpdate:
		// An update for an unknown key is treated as an insert: the row
		// may have entered the view through this very change, or an
		// earlier insert was missed.
		changed = v.upsertLocked(key, ev.Row)
	case EventDelete:
		changed = v.removeLocked(key)
	default:
		v.metrics.ObserveEvent(string(ev.Kind), "unknown_kind")
		return false
	}

	outcome := "ignored"
	if changed {
		outcome = "applied"
	}
	v.metrics.ObserveEvent(string(ev.Kind), outcome)
	if changed {
		v.metrics.ObserveSnapshotSize(v.opts.Table, len(v.rows))
	}
	return changed
}

func (v *View) upsertLocked(key any, row Row) bool {
	idx := v.indexOfLocked(key)
	if !v.opts.Filter.Matches(row) {
		// The new version left the view.
		if idx >= 0 {
			v.rows = append(v.rows[:idx], v.rows[idx+1:]...)
			return true
		}
		return false
	}
	if idx >= 0 {
		v.rows[idx] = row.Clone()
	} else {
		// Live inserts are not truncated against the configured limit;
		// the limit applies to the initial fetch only.
		v.rows = append(v.rows, row.Clone())
	}
	sortRows(v.rows, v.opts.Order)
	return true
}

func (v *View) removeLocked(key any) bool {
	idx := v.indexOfLocked(key)
	if idx < 0 {
		return false
	}
	v.rows = append(v.rows[:idx], v.rows[idx+1:]...)
	return true
}

func (v *View) indexOfLocked(key any) int {
	for i, r := range v.rows {
		if keysEqual(r[v.opts.KeyField], key) {
			return i
		}
	}
	return -1
}

func (v *View) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}

// Rows returns a copy of the current collection.
func (v *View) Rows() []Row {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Row, 0, len(v.rows))
	for _, r := range v.rows {
		out = append(out, r.Clone())
	}
	return out
}

// State returns the current lifecycle state.
func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Loading reports whether the initial fetch is still outstanding.
func (v *View) Loading() bool {
	s := v.State()
	return s == StateIdle || s == StateFetching
}

// Err returns the terminal fetch error, if any.
func (v *View) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Updates exposes a coalesced change signal: at most one pending tick, a
// receive means the snapshot changed since the last read.
func (v *View) Updates() <-chan struct{} {
	return v.updates
}

// Close tears the view down. It is safe to call more than once and safe to
// call before the initial fetch resolves; a fetch result arriving after
// Close is discarded.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		close(v.done)
		v.mu.RLock()
		sub := v.sub
		v.mu.RUnlock()
		if sub != nil {
			if err := sub.Close(); err != nil {
				v.logger.Warn("closing subscription failed", "table", v.opts.Table, "error", err)
			}
		}
	})
	return nil
}
