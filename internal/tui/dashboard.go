package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	"vitalsops/internal/feed"
	"vitalsops/internal/guard"
	"vitalsops/internal/session"
	"vitalsops/internal/telemetry"
)

// maxBannerLines bounds the critical banner; the rest are summarised.
const maxBannerLines = 5

var latestColumns = []table.Column{
	{Title: "UNIT", Width: 10},
	{Title: "HR", Width: 5},
	{Title: "TEMP", Width: 6},
	{Title: "SPO2", Width: 5},
	{Title: "BATT", Width: 5},
	{Title: "RISK", Width: 9},
	{Title: "LAST", Width: 9},
}

type dashboardScreen struct {
	env      *env
	gen      uint64
	operator session.Identity
	view     *feed.LatestView
	table    table.Model
	rows     []telemetry.SoldierReading
	critical []telemetry.SoldierReading
}

func newDashboard(e *env, gen uint64, operator session.Identity) *dashboardScreen {
	s := &dashboardScreen{env: e, gen: gen, operator: operator}
	s.view = feed.NewLatestView(e.ctx, e.feed, e.backend,
		feed.OnChange(func() { e.viewChanged(gen) }),
		feed.WithViewLogger(e.log),
	)
	s.table = table.New(
		table.WithColumns(latestColumns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	return s
}

func (s *dashboardScreen) Init() tea.Cmd {
	v, ctx, gen := s.view, s.env.ctx, s.gen
	return func() tea.Msg {
		return loadDoneMsg{scoped: scoped{gen}, err: v.Load(ctx)}
	}
}

func (s *dashboardScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case viewChangedMsg, loadDoneMsg:
		s.refresh()
		return s, nil
	case tea.WindowSizeMsg:
		s.table.SetHeight(max(3, msg.Height-10-min(len(s.critical), maxBannerLines+1)))
		return s, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if row := s.table.SelectedRow(); row != nil {
				return s, navigate(guard.Location{Route: guard.RouteSoldier, Param: row[0]})
			}
			return s, nil
		case "o":
			return s, navigate(guard.Location{Route: guard.RouteRoster})
		case "n":
			return s, navigate(guard.Location{Route: guard.RouteRegister})
		case "q":
			return s, tea.Quit
		}
	}
	var cmd tea.Cmd
	s.table, cmd = s.table.Update(msg)
	return s, cmd
}

func (s *dashboardScreen) refresh() {
	s.rows = s.view.Rows()
	s.critical = telemetry.CriticalAlerts(s.rows)
	rows := make([]table.Row, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, readingRow(r))
	}
	s.table.SetRows(rows)
}

func readingRow(r telemetry.SoldierReading) table.Row {
	return table.Row{
		r.SoldierID,
		fmt.Sprintf("%.0f", r.HeartRate),
		fmt.Sprintf("%.1f", r.Temperature),
		fmt.Sprintf("%.0f%%", r.SpO2),
		fmt.Sprintf("%.0f%%", r.BatteryLevel),
		string(telemetry.Classify(r)),
		r.Timestamp.Local().Format("15:04:05"),
	}
}

func (s *dashboardScreen) View(width, _ int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("TACTICAL OVERVIEW"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  SECTOR: %s", s.operator.Sector())))
	b.WriteString("\n")

	st := s.view.Status()
	summary := fmt.Sprintf("UNITS %d  CRITICAL %d", len(s.rows), len(s.critical))
	if s.view.Stale() {
		summary += "  " + warnStyle.Render("[STALE]")
	}
	b.WriteString(summary)
	b.WriteString("\n")

	switch st.Phase {
	case feed.PhaseLoading:
		b.WriteString(warnStyle.Render("SYNCING TELEMETRY..."))
		b.WriteString("\n")
	case feed.PhaseFailed:
		line := "TELEMETRY UNAVAILABLE: " + st.Err.Error()
		if width > 0 {
			line = wordwrap.String(line, width)
		}
		b.WriteString(errorStyle.Render(line))
		b.WriteString("\n")
	}

	for i, r := range s.critical {
		if i == maxBannerLines {
			b.WriteString(bannerStyle.Render(fmt.Sprintf("> +%d MORE CRITICAL", len(s.critical)-i)))
			b.WriteString("\n")
			break
		}
		b.WriteString(alertLine(r))
		b.WriteString("\n")
	}
	b.WriteString(s.table.View())
	return b.String()
}

func (s *dashboardScreen) Help() []string {
	return []string{"↑/↓ select", "enter detail", "o roster", "n register", "q quit"}
}

func (s *dashboardScreen) Close() { s.view.Close() }
