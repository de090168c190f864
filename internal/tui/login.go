package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"vitalsops/internal/api"
)

// Login failure messages.
const (
	msgAuthFailed   = "Authorization Failed: Invalid Credentials"
	msgUplinkFailed = "Uplink Failure: Command Server Unreachable"
)

type loginScreen struct {
	env     *env
	gen     uint64
	form    form
	busy    bool
	failure string
}

func newLogin(e *env, gen uint64) *loginScreen {
	f := newForm("operator email", "access code")
	f.masked(1)
	return &loginScreen{env: e, gen: gen, form: f}
}

func (s *loginScreen) Init() tea.Cmd { return nil }

func (s *loginScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case submitMsg:
		s.busy = false
		if msg.err != nil {
			s.failure = loginFailure(msg.err)
			s.env.log.Warn("[Console] login failed", "err", msg.err)
			s.form.inputs[1].SetValue("")
		}
		return s, nil
	case tea.KeyMsg:
		if msg.String() == "enter" {
			if !s.form.last() {
				s.form.setFocus(s.form.focus + 1)
				return s, nil
			}
			return s, s.submit()
		}
	}
	return s, s.form.update(msg)
}

func loginFailure(err error) string {
	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return msgUplinkFailed
	}
	return msgAuthFailed
}

func (s *loginScreen) submit() tea.Cmd {
	email, password := s.form.value(0), s.form.inputs[1].Value()
	if s.busy || email == "" || password == "" {
		return nil
	}
	s.busy = true
	s.failure = ""
	e, gen := s.env, s.gen
	return func() tea.Msg {
		token, id, err := e.backend.Login(e.ctx, email, password)
		if err == nil {
			_, err = e.store.Login(e.ctx, token, id)
		}
		return submitMsg{scoped: scoped{gen}, err: err}
	}
}

func (s *loginScreen) View(width, _ int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("COMMAND ACCESS // OPERATOR LOGIN"))
	b.WriteString("\n\n")
	b.WriteString(s.form.view())
	b.WriteString("\n\n")
	switch {
	case s.busy:
		b.WriteString(warnStyle.Render("VERIFYING CREDENTIALS..."))
	case s.failure != "":
		b.WriteString(errorStyle.Render(s.failure))
	}
	return b.String()
}

func (s *loginScreen) Help() []string {
	return []string{"tab next field", "enter submit"}
}

func (s *loginScreen) Close() {}
