package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"vitalsops/internal/api"
	"vitalsops/internal/guard"
	"vitalsops/internal/telemetry"
)

const msgRegistrationFailed = "Registration Failed"

// Register form fields.
const (
	fieldSoldierID = iota
	fieldName
	fieldUnit
	fieldBlood
)

type registerScreen struct {
	env    *env
	gen    uint64
	form   form
	rank   int
	medic  bool
	busy   bool
	sent   string
	notice string
	fail   string
}

func newRegister(e *env, gen uint64) *registerScreen {
	return &registerScreen{
		env:  e,
		gen:  gen,
		form: newForm("lora hardware id", "full name", "unit", "blood group"),
	}
}

func (s *registerScreen) Init() tea.Cmd { return nil }

func (s *registerScreen) profile() telemetry.SoldierProfile {
	role := telemetry.PersonnelSoldier
	if s.medic {
		role = telemetry.PersonnelMedic
	}
	return telemetry.SoldierProfile{
		SoldierID:  s.form.value(fieldSoldierID),
		Name:       s.form.value(fieldName),
		Rank:       telemetry.Ranks[s.rank],
		Unit:       s.form.value(fieldUnit),
		BloodGroup: strings.ToUpper(s.form.value(fieldBlood)),
		Role:       role,
	}
}

func (s *registerScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case submitMsg:
		s.busy = false
		if msg.err != nil {
			s.fail = api.Message(msg.err, msgRegistrationFailed)
			return s, nil
		}
		s.notice = fmt.Sprintf("PERSONNEL LINKED: %s", s.sent)
		s.form.reset()
		return s, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return s, navigate(guard.Location{Route: guard.RouteHome})
		case "pgdown":
			s.rank = (s.rank + 1) % len(telemetry.Ranks)
			return s, nil
		case "pgup":
			s.rank = (s.rank - 1 + len(telemetry.Ranks)) % len(telemetry.Ranks)
			return s, nil
		case "ctrl+t":
			s.medic = !s.medic
			return s, nil
		case "enter":
			if !s.form.last() {
				s.form.setFocus(s.form.focus + 1)
				return s, nil
			}
			return s, s.submit()
		}
	}
	return s, s.form.update(msg)
}

func (s *registerScreen) submit() tea.Cmd {
	if s.busy {
		return nil
	}
	p := s.profile()
	if p.SoldierID == "" || p.Name == "" {
		s.fail = msgRegistrationFailed + ": hardware id and name are required"
		return nil
	}
	s.busy = true
	s.sent = p.SoldierID
	s.notice, s.fail = "", ""
	e, gen := s.env, s.gen
	return func() tea.Msg {
		return submitMsg{scoped: scoped{gen}, err: e.backend.RegisterSoldier(e.ctx, p)}
	}
}

func (s *registerScreen) View(_, _ int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ENROLL PERSONNEL"))
	b.WriteString("\n\n")
	b.WriteString(s.form.view())
	b.WriteString("\n")
	role := string(telemetry.PersonnelSoldier)
	if s.medic {
		role = string(telemetry.PersonnelMedic)
	}
	b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("RANK"), telemetry.Ranks[s.rank]))
	b.WriteString(fmt.Sprintf("  %s %s\n\n", dimStyle.Render("ROLE"), role))
	switch {
	case s.busy:
		b.WriteString(warnStyle.Render("TRANSMITTING..."))
	case s.fail != "":
		b.WriteString(errorStyle.Render(s.fail))
	case s.notice != "":
		b.WriteString(okStyle.Render(s.notice))
	}
	return b.String()
}

func (s *registerScreen) Help() []string {
	return []string{"tab next field", "pgup/pgdn rank", "ctrl+t medic", "enter submit", "esc back"}
}

func (s *registerScreen) Close() {}
