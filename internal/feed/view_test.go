package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vitalsops/internal/telemetry"
)

// gatedLoader blocks each load until a response is sent on gate.
type gatedLoader struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	gate    chan loadResult
}

type loadResult struct {
	rows []telemetry.SoldierReading
	err  error
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{started: make(chan struct{}, 8), gate: make(chan loadResult)}
}

func (l *gatedLoader) load(ctx context.Context) ([]telemetry.SoldierReading, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	l.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-l.gate:
		return res.rows, res.err
	}
}

func (l *gatedLoader) LoadLatest(ctx context.Context) ([]telemetry.SoldierReading, error) {
	return l.load(ctx)
}

func (l *gatedLoader) LoadHistory(ctx context.Context, _ string) ([]telemetry.SoldierReading, error) {
	return l.load(ctx)
}

func (l *gatedLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func startLoad(v interface{ Load(context.Context) error }) chan error {
	done := make(chan error, 1)
	go func() { done <- v.Load(context.Background()) }()
	return done
}

func TestLatestViewCriticalPushOverSnapshot(t *testing.T) {
	f := New(nil)
	loader := newGatedLoader()
	v := NewLatestView(context.Background(), f, loader, WithViewLogger(quietLogger()))
	defer v.Close()

	done := startLoad(v)
	<-loader.started
	loader.gate <- loadResult{rows: []telemetry.SoldierReading{reading("FC-001", 0, telemetry.RiskNormal)}}
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}

	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 1, telemetry.RiskCritical)})

	rows := v.Rows()
	if len(rows) != 1 || rows[0].RiskLevel != telemetry.RiskCritical {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if crit := v.Critical(); len(crit) != 1 || crit[0].SoldierID != "FC-001" {
		t.Fatalf("unexpected critical set %+v", crit)
	}
	if v.Status().Phase != PhaseReady {
		t.Fatalf("expected READY, got %s", v.Status().Phase)
	}
}

func TestLatestViewReplaysPushesReceivedDuringLoad(t *testing.T) {
	f := New(nil)
	loader := newGatedLoader()
	v := NewLatestView(context.Background(), f, loader, WithViewLogger(quietLogger()))
	defer v.Close()

	done := startLoad(v)
	<-loader.started
	if v.Status().Phase != PhaseLoading {
		t.Fatalf("expected LOADING during first load")
	}
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 5, telemetry.RiskCritical)})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-099", 5, telemetry.RiskNormal)})

	// the snapshot predates both pushes
	loader.gate <- loadResult{rows: []telemetry.SoldierReading{
		reading("FC-001", 0, telemetry.RiskNormal),
		reading("FC-002", 0, telemetry.RiskNormal),
	}}
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}

	rows := v.Rows()
	if got := ids(rows); len(got) != 3 || got[0] != "FC-099" || got[1] != "FC-001" || got[2] != "FC-002" {
		t.Fatalf("unexpected order %v", got)
	}
	if rows[1].RiskLevel != telemetry.RiskCritical {
		t.Fatalf("push lost under snapshot: %+v", rows[1])
	}
}

func TestLatestViewFailedLoad(t *testing.T) {
	loader := newGatedLoader()
	v := NewLatestView(context.Background(), nil, loader, WithViewLogger(quietLogger()))
	defer v.Close()

	boom := errors.New("boom")
	done := startLoad(v)
	<-loader.started
	loader.gate <- loadResult{err: boom}
	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	st := v.Status()
	if st.Phase != PhaseFailed || !errors.Is(st.Err, boom) {
		t.Fatalf("unexpected status %+v", st)
	}
	if v.Stale() {
		t.Fatalf("a view that never loaded is failed, not stale")
	}
}

func TestHistoryViewDiscardsLoadCompletingAfterClose(t *testing.T) {
	f := New(nil)
	loader := newGatedLoader()
	v := NewHistoryView(context.Background(), f, loader, "FC-001", 30, WithViewLogger(quietLogger()))

	done := make(chan error, 1)
	go func() { done <- v.Load(context.Background()) }()
	<-loader.started
	v.Close()

	select {
	case loader.gate <- loadResult{rows: []telemetry.SoldierReading{reading("FC-001", 1, "")}}:
	case <-time.After(time.Second):
		t.Fatalf("loader never released")
	}
	if err := <-done; !errors.Is(err, ErrViewClosed) {
		t.Fatalf("expected ErrViewClosed, got %v", err)
	}
	if len(v.Rows()) != 0 {
		t.Fatalf("late load committed to closed view")
	}
	if err := v.Load(context.Background()); !errors.Is(err, ErrViewClosed) {
		t.Fatalf("Load after Close: %v", err)
	}
}

func TestClosedViewIgnoresFurtherEvents(t *testing.T) {
	f := New(nil)
	loader := newGatedLoader()
	v := NewHistoryView(context.Background(), f, loader, "FC-001", 30, WithViewLogger(quietLogger()))

	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 1, "")})
	before := v.Rows()
	v.Close()

	// deliver straight to the handler as a feed racing the close would
	v.handle(Event{Kind: EventReading, Reading: reading("FC-001", 2, "")})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 3, "")})

	after := v.Rows()
	if len(before) != 1 || len(after) != 1 || !after[0].Timestamp.Equal(before[0].Timestamp) {
		t.Fatalf("closed view changed: before=%d after=%d", len(before), len(after))
	}
	if !v.Closed() {
		t.Fatalf("view not closed")
	}
}

func TestHistoryViewMergesOnlyItsSoldier(t *testing.T) {
	f := New(nil)
	loader := newGatedLoader()
	changes := make(chan struct{}, 16)
	v := NewHistoryView(context.Background(), f, loader, "FC-001", 3,
		WithViewLogger(quietLogger()), OnChange(func() { changes <- struct{}{} }))
	defer v.Close()

	done := startLoad(v)
	<-loader.started
	loader.gate <- loadResult{rows: []telemetry.SoldierReading{reading("FC-001", 1, ""), reading("FC-001", 2, "")}}
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}

	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-002", 3, "")})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 3, "")})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 4, "")})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 4, "")})

	rows := v.Rows()
	if len(rows) != 3 || !rows[0].Timestamp.Equal(t0.Add(2*time.Second)) || !rows[2].Timestamp.Equal(t0.Add(4*time.Second)) {
		t.Fatalf("unexpected history %+v", rows)
	}
	if latest, ok := v.Latest(); !ok || latest.SoldierID != "FC-001" {
		t.Fatalf("unexpected latest %+v", latest)
	}
	if len(changes) == 0 {
		t.Fatalf("OnChange never called")
	}
}

func TestOnReadingReportsOnlyMergedReadings(t *testing.T) {
	f := New(nil)
	var got []telemetry.SoldierReading
	v := NewHistoryView(context.Background(), f, newGatedLoader(), "FC-001", 3,
		WithViewLogger(quietLogger()), OnReading(func(r telemetry.SoldierReading) { got = append(got, r) }))
	defer v.Close()

	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 1, "")})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-002", 2, "")})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 1, telemetry.RiskCritical)})
	f.broadcast(Event{Kind: EventReading, Reading: reading("FC-001", 3, "")})
	f.broadcast(Event{Kind: EventResync})

	if len(got) != 2 || !got[0].Timestamp.Equal(t0.Add(time.Second)) || !got[1].Timestamp.Equal(t0.Add(3*time.Second)) {
		t.Fatalf("unexpected reports %+v", got)
	}
}

func TestViewReloadsOnResync(t *testing.T) {
	f := New(nil)
	loader := newGatedLoader()
	v := NewLatestView(context.Background(), f, loader, WithViewLogger(quietLogger()))
	defer v.Close()

	done := startLoad(v)
	<-loader.started
	loader.gate <- loadResult{rows: []telemetry.SoldierReading{reading("FC-001", 0, "")}}
	<-done

	f.broadcast(Event{Kind: EventResync})
	if !v.Stale() {
		t.Fatalf("expected stale after resync signal")
	}
	select {
	case <-loader.started:
	case <-time.After(time.Second):
		t.Fatalf("resync did not reload")
	}
	loader.gate <- loadResult{rows: []telemetry.SoldierReading{reading("FC-001", 9, ""), reading("FC-003", 9, "")}}

	deadline := time.Now().Add(time.Second)
	for v.Stale() {
		if time.Now().After(deadline) {
			t.Fatalf("view still stale after reload")
		}
		time.Sleep(time.Millisecond)
	}
	if n := len(v.Rows()); n != 2 {
		t.Fatalf("expected reloaded rows, got %d", n)
	}
	if loader.Calls() != 2 {
		t.Fatalf("expected 2 loads, got %d", loader.Calls())
	}
}

func TestResyncFailureKeepsLastKnownRows(t *testing.T) {
	f := New(nil)
	loader := newGatedLoader()
	v := NewLatestView(context.Background(), f, loader, WithViewLogger(quietLogger()))
	defer v.Close()

	done := startLoad(v)
	<-loader.started
	loader.gate <- loadResult{rows: []telemetry.SoldierReading{reading("FC-001", 0, "")}}
	<-done

	done = startLoad(v)
	<-loader.started
	loader.gate <- loadResult{err: errors.New("gateway timeout")}
	<-done

	if !v.Stale() {
		t.Fatalf("failed reload of a loaded view should be stale")
	}
	if len(v.Rows()) != 1 {
		t.Fatalf("last-known rows dropped")
	}
}
