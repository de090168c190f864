// Package status serves a read-only view of the console over HTTP.
package status

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"vitalsops/internal/feed"
	"vitalsops/internal/metrics"
	"vitalsops/internal/session"
	"vitalsops/internal/telemetry"
)

// SessionSource exposes the current session.
type SessionSource interface {
	Snapshot() session.Session
}

// VitalsSource exposes the dashboard table.
type VitalsSource interface {
	Rows() []telemetry.SoldierReading
	Status() feed.Status
	Stale() bool
}

// FeedSource exposes the push connection state.
type FeedSource interface {
	State() feed.State
}

// Server serves health, session, vitals, alerts and metrics.
type Server struct {
	sessions SessionSource
	vitals   VitalsSource
	feed     FeedSource
	log      *slog.Logger
	tpl      *template.Template
}

//go:embed templates/index.html
var content embed.FS

// NewServer builds a status server. vitals and fd may be nil when the
// console runs without a stream.
func NewServer(sessions SessionSource, vitals VitalsSource, fd FeedSource, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	funcs := template.FuncMap{
		"risk": func(r telemetry.SoldierReading) string { return string(telemetry.Classify(r)) },
	}
	tpl := template.Must(template.New("index.html").Funcs(funcs).ParseFS(content, "templates/index.html"))
	return &Server{sessions: sessions, vitals: vitals, feed: fd, log: log, tpl: tpl}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/vitals", s.handleVitals)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start listens on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("[Status] listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) feedState() string {
	if s.feed == nil {
		return feed.Disconnected.String()
	}
	return s.feed.State().String()
}

// rows returns the vitals table. Nothing is served unless an operator is
// signed in.
func (s *Server) rows() []telemetry.SoldierReading {
	if s.vitals == nil || s.sessions.Snapshot().State() != session.StateAuthenticated {
		return nil
	}
	return s.vitals.Rows()
}

type healthResponse struct {
	Session string `json:"session"`
	Feed    string `json:"feed"`
	View    string `json:"view"`
	Stale   bool   `json:"stale"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) health() healthResponse {
	h := healthResponse{Session: s.sessions.Snapshot().State().String(), Feed: s.feedState(), View: feed.PhaseLoading.String()}
	if s.vitals != nil {
		st := s.vitals.Status()
		h.View = st.Phase.String()
		h.Stale = s.vitals.Stale()
		if st.Err != nil {
			h.Error = st.Err.Error()
		}
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.health())
}

type sessionResponse struct {
	State     string     `json:"state"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	Sector    string     `json:"sector,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// handleSession never exposes the credential.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Snapshot()
	resp := sessionResponse{State: sess.State().String()}
	if id, ok := sess.Identity(); ok {
		resp.Name = id.Name
		resp.Email = id.Email
		resp.Role = string(id.Role)
		resp.Sector = id.Sector()
	}
	if exp, ok := sess.ExpiresAt(); ok {
		resp.ExpiresAt = &exp
	}
	writeJSON(w, resp)
}

func (s *Server) handleVitals(w http.ResponseWriter, r *http.Request) {
	rows := s.rows()
	if rows == nil {
		rows = []telemetry.SoldierReading{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := telemetry.CriticalAlerts(s.rows())
	if alerts == nil {
		alerts = []telemetry.SoldierReading{}
	}
	writeJSON(w, alerts)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h := s.health()
	sector := "UNASSIGNED"
	if id, ok := s.sessions.Snapshot().Identity(); ok {
		sector = id.Sector()
	}
	rows := s.rows()
	data := struct {
		Sector  string
		Session string
		Feed    string
		View    string
		Stale   bool
		Alerts  []telemetry.SoldierReading
		Rows    []telemetry.SoldierReading
	}{
		Sector:  sector,
		Session: h.Session,
		Feed:    h.Feed,
		View:    h.View,
		Stale:   h.Stale,
		Alerts:  telemetry.CriticalAlerts(rows),
		Rows:    rows,
	}
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Warn("[Status] render failed", "error", err)
	}
}
