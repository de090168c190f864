package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"vitalsops/internal/feed"
	"vitalsops/internal/guard"
	"vitalsops/internal/telemetry"
)

const (
	recentRows     = 8
	sparkWidth     = 30
	emptyTileValue = "00"
)

type detailScreen struct {
	env       *env
	gen       uint64
	soldierID string
	view      *feed.HistoryView

	profile      telemetry.SoldierProfile
	profileReady bool
	profileErr   error
}

func newDetail(e *env, gen uint64, soldierID string) *detailScreen {
	s := &detailScreen{env: e, gen: gen, soldierID: soldierID}
	s.view = feed.NewHistoryView(e.ctx, e.feed, e.backend, soldierID, e.historyCap,
		feed.OnChange(func() { e.viewChanged(gen) }),
		feed.WithViewLogger(e.log),
	)
	return s
}

func (s *detailScreen) Init() tea.Cmd {
	v, e, gen, id := s.view, s.env, s.gen, s.soldierID
	history := func() tea.Msg {
		return loadDoneMsg{scoped: scoped{gen}, err: v.Load(e.ctx)}
	}
	profile := func() tea.Msg {
		p, found, err := e.backend.LoadProfile(e.ctx, id)
		return profileMsg{scoped: scoped{gen}, profile: p, found: found, err: err}
	}
	return tea.Batch(history, profile)
}

func (s *detailScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case profileMsg:
		s.profileReady = true
		s.profileErr = msg.err
		if msg.found {
			s.profile = msg.profile
		}
		if msg.err != nil {
			s.env.log.Warn("[Console] profile unavailable", "soldier", s.soldierID, "err", msg.err)
		}
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "backspace":
			return s, navigate(guard.Location{Route: guard.RouteHome})
		case "q":
			return s, tea.Quit
		}
	}
	return s, nil
}

func (s *detailScreen) View(width, _ int) string {
	rows := s.view.Rows()
	latest, hasLatest := s.view.Latest()

	var b strings.Builder
	name := s.profile.DisplayName()
	if !s.profileReady {
		name = "..."
	}
	b.WriteString(titleStyle.Render(s.soldierID + " // " + name))
	if hasLatest {
		b.WriteString("  " + riskBadge(latest))
	}
	b.WriteString("\n")
	if s.profile.Name != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s  %s  BLOOD %s  %s",
			s.profile.Rank, s.profile.Unit, s.profile.BloodGroup, s.profile.Role)))
		b.WriteString("\n")
	} else if s.profileErr != nil {
		b.WriteString(dimStyle.Render("profile unavailable"))
		b.WriteString("\n")
	}

	st := s.view.Status()
	switch {
	case st.Phase == feed.PhaseLoading:
		b.WriteString(warnStyle.Render("SYNCING HISTORY..."))
		b.WriteString("\n")
	case st.Phase == feed.PhaseFailed:
		b.WriteString(errorStyle.Render("HISTORY UNAVAILABLE: " + st.Err.Error()))
		b.WriteString("\n")
	case s.view.Stale():
		b.WriteString(warnStyle.Render("[STALE]"))
		b.WriteString("\n")
	}

	b.WriteString(statTiles(latest, hasLatest))
	b.WriteString("\n")

	var hr, temp, spo2 []float64
	for _, r := range rows {
		hr = append(hr, r.HeartRate)
		temp = append(temp, r.Temperature)
		spo2 = append(spo2, r.SpO2)
	}
	w := sparkWidth
	if width > 0 && width-12 < w {
		w = max(width-12, 1)
	}
	b.WriteString(fmt.Sprintf("%-10s %s\n", "HEART", okStyle.Render(sparkline(hr, w))))
	b.WriteString(fmt.Sprintf("%-10s %s\n", "TEMP", warnStyle.Render(sparkline(temp, w))))
	b.WriteString(fmt.Sprintf("%-10s %s\n", "SPO2", okStyle.Render(sparkline(spo2, w))))

	start := max(len(rows)-recentRows, 0)
	for _, r := range rows[start:] {
		line := fmt.Sprintf("%s  HR %3.0f  T %4.1f  SPO2 %3.0f%%  %s",
			r.Timestamp.Local().Format("15:04:05"), r.HeartRate, r.Temperature, r.SpO2, telemetry.Classify(r))
		if width > 0 {
			line = truncate.StringWithTail(line, uint(width), "…")
		}
		b.WriteString(dimStyle.Render(line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func statTiles(r telemetry.SoldierReading, ok bool) string {
	value := func(format string, v float64) string {
		if !ok {
			return emptyTileValue
		}
		return fmt.Sprintf(format, v)
	}
	tile := func(label, v string) string {
		return tileStyle.Render(dimStyle.Render(label) + "\n" + titleStyle.Render(v))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		tile("HEART RATE", value("%.0f BPM", r.HeartRate)),
		tile("BODY TEMP", value("%.1f °C", r.Temperature)),
		tile("SPO2", value("%.0f %%", r.SpO2)),
		tile("BATTERY", value("%.0f %%", r.BatteryLevel)),
	)
}

func (s *detailScreen) Help() []string {
	return []string{"esc back", "q quit"}
}

func (s *detailScreen) Close() { s.view.Close() }
