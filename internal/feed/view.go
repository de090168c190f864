package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"vitalsops/internal/metrics"
	"vitalsops/internal/telemetry"
)

// ErrViewClosed is returned by Load on a closed view.
var ErrViewClosed = errors.New("feed: view closed")

// LatestLoader fetches the latest reading per soldier.
type LatestLoader interface {
	LoadLatest(ctx context.Context) ([]telemetry.SoldierReading, error)
}

// HistoryLoader fetches one soldier's readings, oldest first.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, soldierID string) ([]telemetry.SoldierReading, error)
}

// Phase is the load phase of a view.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "READY"
	case PhaseFailed:
		return "FAILED"
	default:
		return "LOADING"
	}
}

// Status is a view's load state. Err is set in PhaseFailed.
type Status struct {
	Phase Phase
	Err   error
}

// ViewOption configures a view.
type ViewOption func(*viewCore)

// OnChange registers fn to run after every change of the view. fn runs
// outside the view lock, on the goroutine that caused the change. For pushes
// that is the feed goroutine inside delivery, which Close waits on, so fn
// must not block on whoever calls Close.
func OnChange(fn func()) ViewOption {
	return func(v *viewCore) { v.onChange = fn }
}

// OnReading registers fn to run for every pushed reading the view merges,
// after the merge and outside the view lock. Readings a history view drops
// as duplicates or as another soldier's are not reported. fn is subject to
// the same blocking rule as OnChange.
func OnReading(fn func(telemetry.SoldierReading)) ViewOption {
	return func(v *viewCore) { v.onReading = fn }
}

// WithViewLogger sets the view logger.
func WithViewLogger(l *slog.Logger) ViewOption {
	return func(v *viewCore) { v.log = l }
}

// viewCore carries the state shared by every view. All fields below mu are
// guarded by it; merges never interleave.
type viewCore struct {
	name     string
	log      *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	onChange  func()
	onReading func(telemetry.SoldierReading)
	sub       *Subscription

	mu      sync.Mutex
	seq     uint64
	loading bool
	loaded  bool
	pending []telemetry.SoldierReading
	status  Status
	stale   bool
	closed  bool
}

func newViewCore(ctx context.Context, name string, opts []ViewOption) *viewCore {
	v := &viewCore{name: name, log: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	v.ctx, v.cancel = context.WithCancel(ctx)
	return v
}

// begin marks a load in flight. Pushes arriving until the load commits are
// buffered for replay over the snapshot.
func (v *viewCore) begin() (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, false
	}
	v.seq++
	v.loading = true
	v.pending = nil
	if !v.loaded {
		v.status = Status{Phase: PhaseLoading}
	}
	return v.seq, true
}

// settleLocked reports whether the load numbered seq may commit. It clears
// the in-flight state for the current load.
func (v *viewCore) settleLocked(seq uint64) bool {
	if v.closed || seq != v.seq {
		return false
	}
	v.loading = false
	return true
}

func (v *viewCore) failLocked(err error) {
	v.pending = nil
	v.status = Status{Phase: PhaseFailed, Err: err}
	v.stale = v.loaded
	v.log.Warn("[View] snapshot load failed", "view", v.name, "error", err)
}

func (v *viewCore) readyLocked() {
	v.pending = nil
	v.loaded = true
	v.stale = false
	v.status = Status{Phase: PhaseReady}
}

func (v *viewCore) notify() {
	if v.onChange != nil {
		v.onChange()
	}
}

func (v *viewCore) merged(r telemetry.SoldierReading) {
	v.notify()
	if v.onReading != nil {
		v.onReading(r)
	}
}

// Status returns the load state.
func (v *viewCore) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Stale reports whether rows may be missing readings after a stream gap.
func (v *viewCore) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}

// Closed reports whether the view has been torn down.
func (v *viewCore) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Close detaches the view from the feed and discards late loads and
// events. It must not be called from an OnChange callback run by the feed.
func (v *viewCore) Close() {
	if v.sub != nil {
		v.sub.Close()
	}
	v.cancel()
	v.mu.Lock()
	v.closed = true
	v.pending = nil
	v.mu.Unlock()
}

// LatestView is the dashboard table: the latest reading per soldier, kept
// current by pushes.
type LatestView struct {
	*viewCore
	loader LatestLoader
	table  *LatestTable
}

// NewLatestView subscribes to f and returns an empty view. f may be nil for a
// snapshot-only view. Call Load to fetch the first snapshot.
func NewLatestView(ctx context.Context, f *Feed, loader LatestLoader, opts ...ViewOption) *LatestView {
	v := &LatestView{
		viewCore: newViewCore(ctx, "latest", opts),
		loader:   loader,
		table:    NewLatestTable(nil),
	}
	if f != nil {
		v.sub = f.Subscribe(v.handle)
	}
	return v
}

// Load fetches a snapshot and replaces the table with it, replaying pushes
// that arrived while the request was in flight.
func (v *LatestView) Load(ctx context.Context) error {
	seq, ok := v.begin()
	if !ok {
		return ErrViewClosed
	}
	rows, err := v.loader.LoadLatest(ctx)

	v.mu.Lock()
	if !v.settleLocked(seq) {
		closed := v.closed
		v.mu.Unlock()
		if closed {
			return ErrViewClosed
		}
		return nil
	}
	if err != nil {
		v.failLocked(err)
		v.mu.Unlock()
		v.notify()
		return err
	}
	t := NewLatestTable(rows)
	for _, r := range v.pending {
		t.Apply(r)
	}
	v.table = t
	v.readyLocked()
	v.mu.Unlock()
	v.notify()
	return nil
}

func (v *LatestView) handle(ev Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	switch ev.Kind {
	case EventReading:
		v.table.Apply(ev.Reading)
		if v.loading {
			v.pending = append(v.pending, ev.Reading)
		}
		metrics.IncEventMerged(v.name)
		v.mu.Unlock()
		v.merged(ev.Reading)
	case EventResync:
		v.stale = true
		v.mu.Unlock()
		v.notify()
		go v.resync()
	default:
		v.mu.Unlock()
	}
}

func (v *LatestView) resync() {
	if err := v.Load(v.ctx); err != nil && !errors.Is(err, ErrViewClosed) {
		v.log.Warn("[View] resync failed", "view", v.name, "error", err)
	}
}

// Rows returns a copy of the table in display order.
func (v *LatestView) Rows() []telemetry.SoldierReading {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.table.Rows()
}

// Critical returns the CRITICAL rows of the table.
func (v *LatestView) Critical() []telemetry.SoldierReading {
	return telemetry.CriticalAlerts(v.Rows())
}

// HistoryView is one soldier's trend window.
type HistoryView struct {
	*viewCore
	loader    HistoryLoader
	soldierID string
	cap       int
	history   *History
}

// NewHistoryView subscribes to f and returns an empty history for soldierID.
func NewHistoryView(ctx context.Context, f *Feed, loader HistoryLoader, soldierID string, limit int, opts ...ViewOption) *HistoryView {
	v := &HistoryView{
		viewCore:  newViewCore(ctx, "history", opts),
		loader:    loader,
		soldierID: soldierID,
		cap:       limit,
		history:   NewHistory(soldierID, limit, nil),
	}
	if f != nil {
		v.sub = f.Subscribe(v.handle)
	}
	return v
}

// SoldierID returns the soldier the view tracks.
func (v *HistoryView) SoldierID() string { return v.soldierID }

// Load fetches the soldier's history and replays buffered pushes over it.
func (v *HistoryView) Load(ctx context.Context) error {
	seq, ok := v.begin()
	if !ok {
		return ErrViewClosed
	}
	rows, err := v.loader.LoadHistory(ctx, v.soldierID)

	v.mu.Lock()
	if !v.settleLocked(seq) {
		closed := v.closed
		v.mu.Unlock()
		if closed {
			return ErrViewClosed
		}
		return nil
	}
	if err != nil {
		v.failLocked(err)
		v.mu.Unlock()
		v.notify()
		return err
	}
	h := NewHistory(v.soldierID, v.cap, rows)
	for _, r := range v.pending {
		h.Append(r)
	}
	v.history = h
	v.readyLocked()
	v.mu.Unlock()
	v.notify()
	return nil
}

func (v *HistoryView) handle(ev Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	switch ev.Kind {
	case EventReading:
		if ev.Reading.SoldierID != v.soldierID {
			v.mu.Unlock()
			return
		}
		added := v.history.Append(ev.Reading)
		if v.loading {
			v.pending = append(v.pending, ev.Reading)
		}
		metrics.IncEventMerged(v.name)
		v.mu.Unlock()
		if added {
			v.merged(ev.Reading)
		} else {
			v.notify()
		}
	case EventResync:
		v.stale = true
		v.mu.Unlock()
		v.notify()
		go v.resync()
	default:
		v.mu.Unlock()
	}
}

func (v *HistoryView) resync() {
	if err := v.Load(v.ctx); err != nil && !errors.Is(err, ErrViewClosed) {
		v.log.Warn("[View] resync failed", "view", v.name, "soldier", v.soldierID, "error", err)
	}
}

// Rows returns a copy of the history, oldest first.
func (v *HistoryView) Rows() []telemetry.SoldierReading {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.history.Rows()
}

// Latest returns the newest reading in the window.
func (v *HistoryView) Latest() (telemetry.SoldierReading, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.history.Latest()
}
