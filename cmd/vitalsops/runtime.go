package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"

	"vitalsops/internal/api"
	"vitalsops/internal/archive"
	"vitalsops/internal/config"
	"vitalsops/internal/feed"
	"vitalsops/internal/logging"
	"vitalsops/internal/session"
)

var errNotLoggedIn = errors.New("not logged in: run `vitalsops login` first")

// runtime holds the collaborators every command shares.
type runtime struct {
	cfg    *config.Config
	log    *slog.Logger
	client *api.Client
	store  *session.Store

	closers []io.Closer
}

// setup loads configuration and builds the logger, credential store, API
// client and session store. logFile forces file logging for commands that
// own the terminal.
func setup(logFile string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	if logFile != "" && opts.File == "" {
		opts.File = logFile
	}
	log, logCloser, err := logging.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	rt := &runtime{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	creds, closer, err := newCredentialStore(cfg.Credentials)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	rt.client = api.New(cfg.APIURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(log),
		api.WithCredential(func() string { return rt.store.Snapshot().Credential() }),
	)
	rt.store = session.NewStore(creds, rt.client, log)
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
}

// requireSession restores the persisted session and fails unless it is
// authenticated.
func (rt *runtime) requireSession(ctx context.Context) (session.Identity, error) {
	rt.store.Bootstrap(ctx, false)
	id, ok := rt.store.Snapshot().Identity()
	if !ok {
		return session.Identity{}, errNotLoggedIn
	}
	return id, nil
}

// newCredentialStore builds the configured credential store. The closer is
// non-nil when the store holds a connection.
func newCredentialStore(c config.Credentials) (session.CredentialStore, io.Closer, error) {
	switch c.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		return session.NewRedisCredentialStore(client, c.RedisPrefix), client, nil
	case "", "file":
		path := c.Path
		if path == "" {
			p, err := session.DefaultCredentialPath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		return session.NewFileCredentialStore(path), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", c.Store)
	}
}

// newTransport builds the configured push transport. A nil transport means
// live updates are disabled.
func newTransport(s config.Stream, credential func() string, log *slog.Logger) (feed.Transport, error) {
	switch s.Transport {
	case config.TransportWebsocket:
		return &feed.WebsocketTransport{URL: s.URL, Credential: credential, Log: log}, nil
	case config.TransportMQTT:
		return &feed.MQTTTransport{
			Broker:      s.MQTTBroker,
			TopicPrefix: s.MQTTTopicPrefix,
			Username:    s.MQTTUsername,
			Password:    s.MQTTPassword,
			QoS:         1,
			Log:         log,
		}, nil
	case config.TransportReplay:
		if s.ReplayFile == "" {
			return nil, errors.New("stream.replay_file is required for the replay transport")
		}
		return &feed.ReplayTransport{Path: s.ReplayFile, Speed: s.ReplaySpeed}, nil
	case config.TransportSim:
		return &feed.SimTransport{Soldiers: feed.DefaultSquad(s.SimSoldiers), Interval: s.SimInterval, Seed: s.SimSeed}, nil
	case config.TransportNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", s.Transport)
	}
}

// newFeed returns nil when the configured transport is disabled.
func (rt *runtime) newFeed() (*feed.Feed, error) {
	t, err := newTransport(rt.cfg.Stream, func() string { return rt.store.Snapshot().Credential() }, rt.log)
	if err != nil || t == nil {
		return nil, err
	}
	return feed.New(t,
		feed.WithLogger(rt.log),
		feed.WithBackoff(rt.cfg.Stream.BackoffMin, rt.cfg.Stream.BackoffMax),
	), nil
}

// newArchiveWriter combines the configured sinks. It returns nil when no
// sink is configured.
func newArchiveWriter(a config.Archive, log *slog.Logger) (archive.Writer, func(), error) {
	var writers []archive.Writer
	cleanup := func() {}
	if a.File != "" {
		fw, err := archive.NewFileWriter(a.File)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
		cleanup = func() { fw.Close() }
	}
	if a.GreptimeEndpoint != "" {
		gw, err := archive.NewGreptimeWriter(a.GreptimeEndpoint, a.GreptimeDatabase, log)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		writers = append(writers, gw)
	}
	switch len(writers) {
	case 0:
		return nil, cleanup, nil
	case 1:
		return writers[0], cleanup, nil
	default:
		return archive.NewMultiWriter(writers...), cleanup, nil
	}
}

// consoleLogPath is used when the console runs without a configured log file.
func consoleLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "vitalsops.log"
	}
	return filepath.Join(dir, "vitalsops", "console.log")
}
