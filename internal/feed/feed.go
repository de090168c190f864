// Package feed merges pushed vitals readings into the console's views.
//
// A Feed owns one Transport connection and fans readings out to
// subscriptions. Views pair a snapshot loader with a subscription and keep
// their rows consistent across loads, pushes and reconnects.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vitalsops/internal/metrics"
	"vitalsops/internal/telemetry"
)

// ErrStreamEnded is returned by Conn.Next when a finite source is exhausted.
// The feed stops instead of reconnecting.
var ErrStreamEnded = errors.New("feed: stream ended")

// Transport opens push connections.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is one live push connection.
type Conn interface {
	// Next blocks until a reading arrives, ctx ends or the connection fails.
	Next(ctx context.Context) (telemetry.SoldierReading, error)
	Close() error
}

// State is the connection state of a Feed.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// EventKind distinguishes readings from resync signals.
type EventKind int

const (
	// EventReading carries one pushed reading.
	EventReading EventKind = iota
	// EventResync means readings may have been missed during a gap.
	EventResync
)

// Event is delivered to subscription handlers.
type Event struct {
	Kind    EventKind
	Reading telemetry.SoldierReading
}

// Handler receives events on the feed goroutine. A handler must not close
// its own subscription synchronously.
type Handler func(Event)

// Feed is a reconnecting push stream.
type Feed struct {
	transport  Transport
	log        *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	onState    func(State)

	mu    sync.Mutex
	state State
	subs  map[*Subscription]struct{}
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the feed logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.log = l }
}

// WithBackoff sets the reconnect backoff bounds.
func WithBackoff(lo, hi time.Duration) Option {
	return func(f *Feed) {
		if lo > 0 {
			f.minBackoff = lo
		}
		if hi >= f.minBackoff {
			f.maxBackoff = hi
		}
	}
}

// WithStateHook registers fn for state transitions. fn runs on the feed
// goroutine.
func WithStateHook(fn func(State)) Option {
	return func(f *Feed) { f.onState = fn }
}

// New returns a disconnected feed over t.
func New(t Transport, opts ...Option) *Feed {
	f := &Feed{
		transport:  t,
		log:        slog.Default(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		subs:       make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current connection state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Feed) setState(s State) {
	f.mu.Lock()
	changed := f.state != s
	f.state = s
	f.mu.Unlock()
	if !changed {
		return
	}
	metrics.SetFeedState(int(s))
	f.log.Debug("[Feed] state", "state", s.String())
	if f.onState != nil {
		f.onState(s)
	}
}

// Subscribe registers h and returns its handle.
func (f *Feed) Subscribe(h Handler) *Subscription {
	s := &Subscription{feed: f, handler: h, alive: true}
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	return s
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

func (f *Feed) broadcast(ev Event) {
	f.mu.Lock()
	subs := make([]*Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	for _, s := range subs {
		s.deliver(ev)
	}
}

// Run connects and dispatches readings until ctx is cancelled or the
// transport reports ErrStreamEnded. Every connection after the first sends
// EventResync to live subscriptions.
func (f *Feed) Run(ctx context.Context) error {
	defer f.setState(Disconnected)
	backoff := f.minBackoff
	connects := 0
	for {
		f.setState(Connecting)
		conn, err := f.transport.Connect(ctx)
		if err != nil {
			f.setState(Disconnected)
			if ctx.Err() != nil {
				return nil
			}
			f.log.Warn("[Feed] connect failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			metrics.IncReconnect()
			backoff = nextBackoff(backoff, f.maxBackoff)
			continue
		}

		connects++
		backoff = f.minBackoff
		f.setState(Connected)
		if connects > 1 {
			f.log.Info("[Feed] reconnected, requesting resync")
			metrics.IncResync()
			f.broadcast(Event{Kind: EventResync})
		}

		err = f.pump(ctx, conn)
		_ = conn.Close()
		f.setState(Disconnected)
		if ctx.Err() != nil || errors.Is(err, ErrStreamEnded) {
			return nil
		}
		f.log.Warn("[Feed] connection lost", "error", err, "retry_in", backoff)
		if !sleep(ctx, backoff) {
			return nil
		}
		metrics.IncReconnect()
		backoff = nextBackoff(backoff, f.maxBackoff)
	}
}

func (f *Feed) pump(ctx context.Context, conn Conn) error {
	for {
		r, err := conn.Next(ctx)
		if err != nil {
			return err
		}
		metrics.IncEventReceived()
		f.broadcast(Event{Kind: EventReading, Reading: r})
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Subscription is the handle returned by Feed.Subscribe.
type Subscription struct {
	feed    *Feed
	handler Handler

	mu    sync.Mutex
	alive bool
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}
	s.handler(ev)
}

// Close detaches the subscription. After Close returns no handler call is
// in progress and none will start. Close is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
	s.feed.remove(s)
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}
