// Package tui is the operator console: a bubbletea program whose screens are
// gated by the access guard and fed by the session store and telemetry views.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	"vitalsops/internal/api"
	"vitalsops/internal/feed"
	"vitalsops/internal/guard"
	"vitalsops/internal/session"
	"vitalsops/internal/telemetry"
)

// Backend is the slice of the portal API the console calls.
type Backend interface {
	Login(ctx context.Context, email, password string) (string, session.Identity, error)
	LoadLatest(ctx context.Context) ([]telemetry.SoldierReading, error)
	LoadHistory(ctx context.Context, soldierID string) ([]telemetry.SoldierReading, error)
	LoadProfile(ctx context.Context, soldierID string) (telemetry.SoldierProfile, bool, error)
	Soldiers(ctx context.Context) ([]telemetry.SoldierProfile, error)
	RegisterSoldier(ctx context.Context, p telemetry.SoldierProfile) error
	Commanders(ctx context.Context) ([]telemetry.Commander, error)
	CreateCommander(ctx context.Context, nc api.NewCommander) error
}

// Deps are the long-lived collaborators shared by every screen.
type Deps struct {
	Store      *session.Store
	Backend    Backend
	Feed       *feed.Feed // nil disables live updates
	HistoryCap int
	Log        *slog.Logger
}

type env struct {
	ctx        context.Context
	store      *session.Store
	backend    Backend
	feed       *feed.Feed
	historyCap int
	log        *slog.Logger
	program    teaProgram

	// changed wakes forwardChanges; changedGen is the newest screen
	// generation whose view reported a change.
	changed    chan struct{}
	changedGen atomic.Uint64
}

func (e *env) send(msg tea.Msg) {
	if e.program != nil {
		e.program.Send(msg)
	}
}

// viewChanged records a change in a view owned by screen gen. It never
// blocks: views call it from feed delivery, which a screen teardown on the
// program goroutine may be waiting on.
func (e *env) viewChanged(gen uint64) {
	for {
		cur := e.changedGen.Load()
		if gen <= cur || e.changedGen.CompareAndSwap(cur, gen) {
			break
		}
	}
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// forwardChanges delivers coalesced view changes to the program until ctx
// ends.
func (e *env) forwardChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.changed:
			e.send(viewChangedMsg{scoped{e.changedGen.Load()}})
		}
	}
}

// screen is one route's model. Screens are built on entry and closed on exit;
// Close must release every feed subscription the screen holds.
type screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (screen, tea.Cmd)
	View(width, height int) string
	Help() []string
	Close()
}

// App is the root model. It owns navigation and consults the guard on every
// transition.
type App struct {
	env    *env
	sess   session.Session
	want   guard.Location
	loc    guard.Location
	screen screen
	gen    uint64

	feedState     feed.State
	width, height int
}

// NewApp returns the console model positioned at start. Nothing is rendered
// past the loading state until the session store has bootstrapped.
func NewApp(ctx context.Context, deps Deps, start guard.Location) App {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	limit := deps.HistoryCap
	if limit <= 0 {
		limit = feed.DefaultHistoryCap
	}
	return App{
		env: &env{
			ctx:        ctx,
			store:      deps.Store,
			backend:    deps.Backend,
			feed:       deps.Feed,
			historyCap: limit,
			log:        log,
			changed:    make(chan struct{}, 1),
		},
		sess: deps.Store.Snapshot(),
		want: start,
	}
}

// attach routes store transitions and view changes to p.
func (a App) attach(p teaProgram) func() {
	a.env.program = p
	return a.env.store.Subscribe(func(s session.Session, intent session.Intent) {
		p.Send(sessionMsg{sess: s, intent: intent})
	})
}

// newProgram builds the program for app and starts routing store
// transitions and view changes to it. The returned func stops both.
func newProgram(app App, opts ...tea.ProgramOption) (*tea.Program, func()) {
	p := tea.NewProgram(app, opts...)
	detach := app.attach(p)
	ctx, cancel := context.WithCancel(app.env.ctx)
	go app.env.forwardChanges(ctx)
	return p, func() {
		cancel()
		detach()
	}
}

// Run starts the console on the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, deps Deps, start guard.Location) error {
	app := NewApp(ctx, deps, start)
	p, stop := newProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	defer stop()

	final, err := p.Run()
	if m, ok := final.(App); ok {
		m.closeScreen()
	} else {
		app.closeScreen()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

func (a App) Init() tea.Cmd {
	store, ctx := a.env.store, a.env.ctx
	onLogin := a.want.Route == guard.RouteLogin
	bootstrap := func() tea.Msg {
		store.Bootstrap(ctx, onLogin)
		return nil
	}
	return tea.Batch(bootstrap, tick())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if sm, ok := msg.(screenMsg); ok && sm.screenGen() != a.gen {
		return a, nil
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "ctrl+x":
			if a.sess.State() == session.StateAuthenticated {
				return a, a.logout()
			}
		}
	case sessionMsg:
		return a.onSession(msg)
	case navigateMsg:
		return a.navigate(msg.loc)
	case tickMsg:
		if a.env.feed != nil {
			a.feedState = a.env.feed.State()
		}
		return a, tick()
	}
	if a.screen == nil {
		return a, nil
	}
	next, cmd := a.screen.Update(msg)
	a.screen = next
	return a, cmd
}

func (a App) logout() tea.Cmd {
	store, ctx := a.env.store, a.env.ctx
	return func() tea.Msg {
		_, _ = store.Logout(ctx)
		return nil
	}
}

func (a App) onSession(msg sessionMsg) (tea.Model, tea.Cmd) {
	a.sess = msg.sess
	switch msg.intent {
	case session.IntentHome:
		return a.navigate(guard.Location{Route: guard.HomeFor(a.sess.Role())})
	case session.IntentLogin:
		return a.navigate(guard.Location{Route: guard.RouteLogin})
	default:
		return a.navigate(a.want)
	}
}

// navigate enters loc if the guard allows it, following at most one redirect.
// Redirect targets are always enterable by the redirected session.
func (a App) navigate(loc guard.Location) (App, tea.Cmd) {
	a.want = loc
	if a.sess.State() == session.StatePending {
		a.closeScreen()
		a.screen = nil
		return a, nil
	}
	if guard.RequiredRole(loc.Route) != session.RoleNone {
		d := guard.DecideRoute(a.sess, loc.Route)
		if d.Kind == guard.Redirect {
			a.env.log.Debug("[Console] redirect", "from", loc.Path(), "to", d.Target)
			loc = guard.Location{Route: d.Target}
			a.want = loc
		}
	}
	if a.screen != nil && a.loc == loc {
		return a, nil
	}
	a.closeScreen()
	a.gen++
	a.loc = loc
	a.screen = a.build(loc)
	cmd := a.screen.Init()
	if a.width > 0 {
		var sizeCmd tea.Cmd
		a.screen, sizeCmd = a.screen.Update(tea.WindowSizeMsg{Width: a.width, Height: a.height})
		cmd = tea.Batch(cmd, sizeCmd)
	}
	return a, cmd
}

func (a App) build(loc guard.Location) screen {
	id, _ := a.sess.Identity()
	switch loc.Route {
	case guard.RouteHome:
		return newDashboard(a.env, a.gen, id)
	case guard.RouteSoldier:
		return newDetail(a.env, a.gen, loc.Param)
	case guard.RouteRoster:
		return newRoster(a.env, a.gen)
	case guard.RouteRegister:
		return newRegister(a.env, a.gen)
	case guard.RouteAdminHQ:
		return newAdminHQ(a.env, a.gen)
	case guard.RouteSectors:
		return newSectors(a.env, a.gen)
	default:
		return newLogin(a.env, a.gen)
	}
}

func (a App) closeScreen() {
	if a.screen != nil {
		a.screen.Close()
	}
}

// Location returns the route the console is showing or waiting for.
func (a App) Location() guard.Location { return a.want }

func (a App) View() string {
	var b strings.Builder
	b.WriteString(a.header())
	b.WriteString("\n")
	b.WriteString(divider(a.width))
	b.WriteString("\n")

	var help []string
	switch {
	case a.sess.State() == session.StatePending || a.screen == nil:
		b.WriteString(titleStyle.Render("AUTHENTICATING SESSION..."))
	default:
		b.WriteString(a.screen.View(a.width, a.height-4))
		help = a.screen.Help()
	}
	b.WriteString("\n")
	b.WriteString(divider(a.width))
	b.WriteString("\n")
	b.WriteString(a.renderHelp(help))
	return b.String()
}

func (a App) header() string {
	parts := []string{titleStyle.Render("VITALSOPS")}
	if id, ok := a.sess.Identity(); ok {
		parts = append(parts, fmt.Sprintf("%s (%s)", id.Name, id.Role))
	}
	if a.env.feed != nil {
		parts = append(parts, "FEED "+feedIndicator(a.feedState))
	}
	return strings.Join(parts, dimStyle.Render("  //  "))
}

func feedIndicator(s feed.State) string {
	st := warnStyle
	switch s {
	case feed.Connected:
		st = okStyle
	case feed.Disconnected:
		st = errorStyle
	}
	return st.Render(s.String())
}

func (a App) renderHelp(keys []string) string {
	if a.sess.State() == session.StateAuthenticated {
		keys = append(keys, "ctrl+x logout")
	}
	keys = append(keys, "ctrl+c quit")
	line := strings.Join(keys, " • ")
	if a.width > 0 {
		line = wordwrap.String(line, a.width)
	}
	return dimStyle.Render(line)
}
