package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"vitalsops/internal/api"
	"vitalsops/internal/guard"
	"vitalsops/internal/telemetry"
)

const msgClearanceFailed = "Registration Failed: Insufficient Clearance"

var commanderColumns = []table.Column{
	{Title: "NAME", Width: 20},
	{Title: "EMAIL", Width: 26},
	{Title: "SECTOR", Width: 16},
}

// adminScreen lists commanders and provisions new ones.
type adminScreen struct {
	env     *env
	gen     uint64
	table   table.Model
	form    form
	editing bool
	busy    bool
	ready   bool
	loadErr error
	count   int
	notice  string
	fail    string
}

func newAdminHQ(e *env, gen uint64) *adminScreen {
	f := newForm("name", "email", "password", "region")
	f.masked(2)
	return &adminScreen{
		env:  e,
		gen:  gen,
		form: f,
		table: table.New(
			table.WithColumns(commanderColumns),
			table.WithFocused(true),
			table.WithHeight(10),
		),
	}
}

func loadCommanders(e *env, gen uint64) tea.Cmd {
	return func() tea.Msg {
		rows, err := e.backend.Commanders(e.ctx)
		return commandersMsg{scoped: scoped{gen}, rows: rows, err: err}
	}
}

func (s *adminScreen) Init() tea.Cmd { return loadCommanders(s.env, s.gen) }

func (s *adminScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case commandersMsg:
		s.ready = true
		s.loadErr = msg.err
		if msg.err == nil {
			rows := make([]table.Row, 0, len(msg.rows))
			for _, c := range msg.rows {
				rows = append(rows, table.Row{c.Name, c.Email, sectorName(c)})
			}
			s.count = len(rows)
			s.table.SetRows(rows)
		}
		return s, nil
	case submitMsg:
		s.busy = false
		if msg.err != nil {
			s.fail = api.Message(msg.err, msgClearanceFailed)
			s.env.log.Warn("[Console] commander provisioning failed", "err", msg.err)
			return s, nil
		}
		s.notice = "COMMANDER PROVISIONED"
		s.form.reset()
		s.editing = false
		return s, loadCommanders(s.env, s.gen)
	case tea.WindowSizeMsg:
		s.table.SetHeight(max(3, msg.Height-8))
		return s, nil
	case tea.KeyMsg:
		if s.editing {
			return s.updateForm(msg)
		}
		switch msg.String() {
		case "c":
			s.editing = true
			s.notice, s.fail = "", ""
			return s, nil
		case "s":
			return s, navigate(guard.Location{Route: guard.RouteSectors})
		case "r":
			return s, loadCommanders(s.env, s.gen)
		case "q":
			return s, tea.Quit
		}
	}
	if s.editing {
		return s, s.form.update(msg)
	}
	var cmd tea.Cmd
	s.table, cmd = s.table.Update(msg)
	return s, cmd
}

func (s *adminScreen) updateForm(msg tea.KeyMsg) (screen, tea.Cmd) {
	switch msg.String() {
	case "esc":
		s.editing = false
		return s, nil
	case "enter":
		if !s.form.last() {
			s.form.setFocus(s.form.focus + 1)
			return s, nil
		}
		return s, s.submit()
	}
	return s, s.form.update(msg)
}

func (s *adminScreen) submit() tea.Cmd {
	nc := api.NewCommander{
		Name:     s.form.value(0),
		Email:    s.form.value(1),
		Password: s.form.inputs[2].Value(),
		Region:   s.form.value(3),
	}
	if s.busy {
		return nil
	}
	if nc.Name == "" || nc.Email == "" || nc.Password == "" {
		s.fail = "name, email and password are required"
		return nil
	}
	s.busy = true
	s.fail = ""
	e, gen := s.env, s.gen
	return func() tea.Msg {
		return submitMsg{scoped: scoped{gen}, err: e.backend.CreateCommander(e.ctx, nc)}
	}
}

func (s *adminScreen) View(_, _ int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("HIGH COMMAND // COMMANDERS"))
	b.WriteString("\n")
	switch {
	case !s.ready:
		b.WriteString(warnStyle.Render("LOADING COMMANDERS..."))
	case s.loadErr != nil:
		b.WriteString(errorStyle.Render("COMMANDERS UNAVAILABLE: " + s.loadErr.Error()))
	default:
		b.WriteString(dimStyle.Render(pluralize(s.count, "commander", "commanders")))
		b.WriteString("\n")
		b.WriteString(s.table.View())
	}
	b.WriteString("\n")
	if s.editing {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("PROVISION COMMANDER"))
		b.WriteString("\n")
		b.WriteString(s.form.view())
		b.WriteString("\n")
	}
	switch {
	case s.busy:
		b.WriteString(warnStyle.Render("TRANSMITTING..."))
	case s.fail != "":
		b.WriteString(errorStyle.Render(s.fail))
	case s.notice != "":
		b.WriteString(okStyle.Render(s.notice))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *adminScreen) Help() []string {
	if s.editing {
		return []string{"tab next field", "enter submit", "esc cancel"}
	}
	return []string{"c create commander", "s sectors", "r refresh", "q quit"}
}

func (s *adminScreen) Close() {}

func sectorName(c telemetry.Commander) string {
	if c.Region == "" {
		return telemetry.DefaultSector
	}
	return c.Region
}

// sectorsScreen groups commanders by region.
type sectorsScreen struct {
	env     *env
	gen     uint64
	sectors []telemetry.Sector
	ready   bool
	err     error
}

func newSectors(e *env, gen uint64) *sectorsScreen {
	return &sectorsScreen{env: e, gen: gen}
}

func (s *sectorsScreen) Init() tea.Cmd { return loadCommanders(s.env, s.gen) }

func (s *sectorsScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case commandersMsg:
		s.ready = true
		s.err = msg.err
		s.sectors = telemetry.GroupSectors(msg.rows)
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, navigate(guard.Location{Route: guard.RouteAdminHQ})
		case "r":
			return s, loadCommanders(s.env, s.gen)
		case "q":
			return s, tea.Quit
		}
	}
	return s, nil
}

func (s *sectorsScreen) View(_, _ int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SECTOR COMMAND"))
	b.WriteString("\n")
	switch {
	case !s.ready:
		return b.String() + warnStyle.Render("LOADING SECTORS...")
	case s.err != nil:
		return b.String() + errorStyle.Render("SECTORS UNAVAILABLE: "+s.err.Error())
	}
	b.WriteString(dimStyle.Render(pluralize(len(s.sectors), "active sector", "active sectors")))
	b.WriteString("\n")
	for _, sec := range s.sectors {
		b.WriteString(fmt.Sprintf("\n%s %s\n", titleStyle.Render(strings.ToUpper(sec.Name)),
			dimStyle.Render(fmt.Sprintf("(%d)", len(sec.Commanders)))))
		for _, c := range sec.Commanders {
			b.WriteString(fmt.Sprintf("  %s  %s\n", c.Name, dimStyle.Render(c.Email)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *sectorsScreen) Help() []string {
	return []string{"esc back", "r refresh", "q quit"}
}

func (s *sectorsScreen) Close() {}
