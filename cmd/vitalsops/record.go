package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vitalsops/internal/archive"
	"vitalsops/internal/metrics"
)

var (
	recordFile     string
	recordDuration time.Duration
	recordMetrics  string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Archive pushed readings to JSONL and/or GreptimeDB",
	Long:  "record subscribes to the configured stream and writes every reading to the archive sinks until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup("")
		if err != nil {
			return err
		}
		defer rt.Close()
		metrics.Init()

		cfg := rt.cfg.Archive
		if recordFile != "" {
			cfg.File = recordFile
		}
		w, cleanup, err := newArchiveWriter(cfg, rt.log)
		if err != nil {
			return err
		}
		defer cleanup()
		if w == nil {
			return errors.New("no archive sink: set --file, archive.file or GREPTIMEDB_ENDPOINT")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if recordDuration > 0 {
			ctx, cancel = context.WithTimeout(ctx, recordDuration)
			defer cancel()
		}
		// Replay and simulated streams need no operator session.
		rt.store.Bootstrap(ctx, false)

		f, err := rt.newFeed()
		if err != nil {
			return err
		}
		if f == nil {
			return errors.New("stream.transport is none: nothing to record")
		}
		sub := archive.Record(f, w, "record", rt.log)
		defer sub.Close()

		if recordMetrics != "" {
			go serveMetrics(ctx, rt, recordMetrics)
		}
		rt.log.Info("[Record] recording", "transport", rt.cfg.Stream.Transport, "file", cfg.File, "greptime", cfg.GreptimeEndpoint)
		return f.Run(ctx)
	},
}

// serveMetrics exposes /metrics on addr until ctx ends.
func serveMetrics(ctx context.Context, rt *runtime, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rt.log.Error("[Record] metrics server failed", "error", err)
	}
}

func init() {
	recordCmd.Flags().StringVar(&recordFile, "file", "", "JSONL archive path (overrides archive.file)")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	recordCmd.Flags().StringVar(&recordMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address")
}
