package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"vitalsops/internal/archive"
	"vitalsops/internal/feed"
	"vitalsops/internal/guard"
	"vitalsops/internal/metrics"
	"vitalsops/internal/session"
	"vitalsops/internal/status"
	"vitalsops/internal/telemetry"
	"vitalsops/internal/tui"
)

var consoleRoute string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the interactive operator console",
	Long:  "console opens the full-screen console: login, live dashboard, soldier detail, roster and high command screens.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(consoleLogPath())
		if err != nil {
			return err
		}
		defer rt.Close()
		metrics.Init()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		f, err := rt.newFeed()
		if err != nil {
			return err
		}
		if f != nil {
			go func() {
				if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					rt.log.Warn("[Main] feed stopped", "error", err)
				}
			}()
			w, cleanup, err := newArchiveWriter(rt.cfg.Archive, rt.log)
			if err != nil {
				return err
			}
			defer cleanup()
			if w != nil {
				sub := archive.Record(f, w, "console", rt.log)
				defer sub.Close()
			}
		}

		if rt.cfg.StatusAddr != "" {
			stop := startStatus(ctx, rt, f)
			defer stop()
		}

		rt.log.Info("[Main] console starting", "api", rt.cfg.APIURL, "transport", rt.cfg.Stream.Transport)
		return tui.Run(ctx, tui.Deps{
			Store:      rt.store,
			Backend:    rt.client,
			Feed:       f,
			HistoryCap: rt.cfg.HistoryCap,
			Log:        rt.log,
		}, guard.Resolve(consoleRoute))
	},
}

// startStatus serves the status endpoints with a vitals table that follows
// the session: it is rebuilt and loaded on every login and dropped on logout.
func startStatus(ctx context.Context, rt *runtime, f *feed.Feed) func() {
	view := &statusVitals{ctx: ctx, feed: f, loader: rt.client, log: rt.log}
	unsubscribe := rt.store.Subscribe(view.onSession)

	var fs status.FeedSource
	if f != nil {
		fs = f
	}
	srv := status.NewServer(rt.store, view, fs, rt.log)
	go func() {
		rt.log.Info("[Main] status server listening", "addr", rt.cfg.StatusAddr)
		if err := srv.Start(ctx, rt.cfg.StatusAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error("[Main] status server failed", "error", err)
		}
	}()
	return func() {
		unsubscribe()
		view.close()
	}
}

// statusVitals is the status server's vitals table. A view exists only while
// an operator is signed in.
type statusVitals struct {
	ctx    context.Context
	feed   *feed.Feed
	loader feed.LatestLoader
	log    *slog.Logger

	mu   sync.Mutex
	view *feed.LatestView
}

func (v *statusVitals) onSession(s session.Session, _ session.Intent) {
	var next *feed.LatestView
	if s.State() == session.StateAuthenticated {
		next = feed.NewLatestView(v.ctx, v.feed, v.loader, feed.WithViewLogger(v.log))
	}
	v.mu.Lock()
	old := v.view
	v.view = next
	v.mu.Unlock()
	if old != nil {
		old.Close()
	}
	if next == nil {
		return
	}
	go func() {
		if err := next.Load(v.ctx); err != nil && !errors.Is(err, feed.ErrViewClosed) {
			v.log.Warn("[Status] vitals load failed", "error", err)
		}
	}()
}

func (v *statusVitals) current() *feed.LatestView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.view
}

func (v *statusVitals) Rows() []telemetry.SoldierReading {
	if cur := v.current(); cur != nil {
		return cur.Rows()
	}
	return nil
}

func (v *statusVitals) Status() feed.Status {
	if cur := v.current(); cur != nil {
		return cur.Status()
	}
	return feed.Status{Phase: feed.PhaseLoading}
}

func (v *statusVitals) Stale() bool {
	if cur := v.current(); cur != nil {
		return cur.Stale()
	}
	return false
}

func (v *statusVitals) close() {
	v.mu.Lock()
	cur := v.view
	v.view = nil
	v.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
}

func init() {
	consoleCmd.Flags().StringVar(&consoleRoute, "route", "/", "Initial console path (e.g. /roster, /soldier/FC-001)")
}
