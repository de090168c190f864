package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"vitalsops/internal/guard"
	"vitalsops/internal/telemetry"
)

var rosterColumns = []table.Column{
	{Title: "UNIT", Width: 10},
	{Title: "NAME", Width: 20},
	{Title: "RANK", Width: 11},
	{Title: "DETACHMENT", Width: 14},
	{Title: "BLOOD", Width: 5},
	{Title: "ROLE", Width: 7},
}

type rosterScreen struct {
	env   *env
	gen   uint64
	table table.Model
	count int
	ready bool
	err   error
}

func newRoster(e *env, gen uint64) *rosterScreen {
	return &rosterScreen{
		env: e,
		gen: gen,
		table: table.New(
			table.WithColumns(rosterColumns),
			table.WithFocused(true),
			table.WithHeight(12),
		),
	}
}

func (s *rosterScreen) Init() tea.Cmd {
	e, gen := s.env, s.gen
	return func() tea.Msg {
		rows, err := e.backend.Soldiers(e.ctx)
		return soldiersMsg{scoped: scoped{gen}, rows: rows, err: err}
	}
}

func (s *rosterScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case soldiersMsg:
		s.ready = true
		s.err = msg.err
		if msg.err == nil {
			s.setRows(msg.rows)
		}
		return s, nil
	case tea.WindowSizeMsg:
		s.table.SetHeight(max(3, msg.Height-6))
		return s, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if row := s.table.SelectedRow(); row != nil {
				return s, navigate(guard.Location{Route: guard.RouteSoldier, Param: row[0]})
			}
			return s, nil
		case "n":
			return s, navigate(guard.Location{Route: guard.RouteRegister})
		case "esc":
			return s, navigate(guard.Location{Route: guard.RouteHome})
		case "q":
			return s, tea.Quit
		}
	}
	var cmd tea.Cmd
	s.table, cmd = s.table.Update(msg)
	return s, cmd
}

func (s *rosterScreen) setRows(profiles []telemetry.SoldierProfile) {
	rows := make([]table.Row, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, table.Row{p.SoldierID, p.DisplayName(), p.Rank, p.Unit, p.BloodGroup, string(p.Role)})
	}
	s.count = len(rows)
	s.table.SetRows(rows)
}

func (s *rosterScreen) View(_, _ int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PERSONNEL ROSTER"))
	b.WriteString("\n")
	switch {
	case !s.ready:
		b.WriteString(warnStyle.Render("LOADING ROSTER..."))
		return b.String()
	case s.err != nil:
		b.WriteString(errorStyle.Render("ROSTER UNAVAILABLE: " + s.err.Error()))
		return b.String()
	}
	b.WriteString(dimStyle.Render(pluralize(s.count, "soldier", "soldiers") + " enrolled"))
	b.WriteString("\n")
	b.WriteString(s.table.View())
	return b.String()
}

func (s *rosterScreen) Help() []string {
	return []string{"enter detail", "n register", "esc back", "q quit"}
}

func (s *rosterScreen) Close() {}
