package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"vitalsops/internal/guard"
	"vitalsops/internal/session"
	"vitalsops/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// sessionMsg carries a session transition from the store.
type sessionMsg struct {
	sess   session.Session
	intent session.Intent
}

// navigateMsg asks the app to enter a location.
type navigateMsg struct{ loc guard.Location }

type tickMsg struct{}

// screenMsg is implemented by results addressed to one screen instance.
// Results for a screen that has since been torn down are dropped.
type screenMsg interface {
	screenGen() uint64
}

type scoped struct{ gen uint64 }

func (s scoped) screenGen() uint64 { return s.gen }

// viewChangedMsg reports that a feed view merged a push or a load.
type viewChangedMsg struct{ scoped }

type loadDoneMsg struct {
	scoped
	err error
}

type profileMsg struct {
	scoped
	profile telemetry.SoldierProfile
	found   bool
	err     error
}

type soldiersMsg struct {
	scoped
	rows []telemetry.SoldierProfile
	err  error
}

type commandersMsg struct {
	scoped
	rows []telemetry.Commander
	err  error
}

type submitMsg struct {
	scoped
	err error
}

func navigate(loc guard.Location) tea.Cmd {
	return func() tea.Msg { return navigateMsg{loc: loc} }
}
