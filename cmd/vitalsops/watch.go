package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vitalsops/internal/archive"
	"vitalsops/internal/feed"
	"vitalsops/internal/telemetry"
)

var (
	watchJSON    bool
	watchSoldier string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream vitals to STDOUT",
	Long:  "watch prints the latest snapshot (or one soldier's history) and then every pushed reading until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if _, err := rt.requireSession(ctx); err != nil {
			return err
		}

		f, err := rt.newFeed()
		if err != nil {
			return err
		}
		return watch(ctx, f, rt.client, watchSoldier, rt.cfg.HistoryCap, archive.NewStdoutWriter(watchJSON), rt.log)
	},
}

// watchSource loads the snapshots watch starts from.
type watchSource interface {
	feed.LatestLoader
	feed.HistoryLoader
}

// watch prints the snapshot and then every reading the view merges. The
// view subscribes before its snapshot loads and the feed runs alongside the
// load, so pushes that race the request are replayed rather than lost. With
// a soldierID it follows that soldier's history instead of the squad.
func watch(ctx context.Context, f *feed.Feed, src watchSource, soldierID string, limit int, out archive.Writer, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := newWatcher(out)
	opts := []feed.ViewOption{feed.WithViewLogger(log), feed.OnReading(w.push)}

	var load func(context.Context) error
	var snapshot func() []telemetry.SoldierReading
	if soldierID != "" {
		v := feed.NewHistoryView(ctx, f, src, soldierID, limit, opts...)
		defer v.Close()
		load, snapshot = v.Load, v.Rows
	} else {
		v := feed.NewLatestView(ctx, f, src, opts...)
		defer v.Close()
		load = v.Load
		snapshot = func() []telemetry.SoldierReading {
			for _, r := range v.Critical() {
				log.Warn("[Watch] critical unit", "soldier", r.SoldierID, "heart_rate", r.HeartRate, "spo2", r.SpO2)
			}
			return v.Rows()
		}
	}

	done := make(chan struct{})
	runErr := make(chan error, 1)
	if f == nil {
		close(done)
		runErr <- nil
	} else {
		go func() {
			defer close(done)
			runErr <- f.Run(ctx)
		}()
	}

	if err := load(ctx); err != nil {
		return err
	}
	w.run(ctx, snapshot(), done)
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watcher prints a snapshot followed by the readings merged after it.
type watcher struct {
	out  archive.Writer
	wake chan struct{}

	mu    sync.Mutex
	queue []telemetry.SoldierReading
}

func newWatcher(out archive.Writer) *watcher {
	return &watcher{out: out, wake: make(chan struct{}, 1)}
}

// push queues r for printing. It runs on the feed goroutine and never blocks.
func (w *watcher) push(r telemetry.SoldierReading) {
	w.mu.Lock()
	w.queue = append(w.queue, r)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run writes snapshot, then queued readings until done closes or ctx ends.
// Queued readings already printed as part of the snapshot are skipped.
func (w *watcher) run(ctx context.Context, snapshot []telemetry.SoldierReading, done <-chan struct{}) {
	printed := make(map[telemetry.ReadingKey]struct{}, len(snapshot))
	for _, r := range snapshot {
		_ = w.out.Write(r)
		printed[r.Key()] = struct{}{}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.flush(printed)
		case <-done:
			w.flush(printed)
			return
		}
	}
}

func (w *watcher) flush(printed map[telemetry.ReadingKey]struct{}) {
	w.mu.Lock()
	queue := w.queue
	w.queue = nil
	w.mu.Unlock()
	for _, r := range queue {
		if _, ok := printed[r.Key()]; ok {
			continue
		}
		_ = w.out.Write(r)
	}
}

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Emit JSON lines even on a terminal")
	watchCmd.Flags().StringVar(&watchSoldier, "soldier", "", "Watch one soldier's history instead of the squad")
}
