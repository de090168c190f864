package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"vitalsops/internal/api"
	"vitalsops/internal/feed"
	"vitalsops/internal/guard"
	"vitalsops/internal/session"
	"vitalsops/internal/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

// take returns and clears the queued messages.
func (f *fakeProgram) take() []tea.Msg {
	msgs := f.msgs
	f.msgs = nil
	return msgs
}

type memCreds struct{ token string }

func (m *memCreds) Load(context.Context) (string, error) {
	if m.token == "" {
		return "", session.ErrNoCredential
	}
	return m.token, nil
}

func (m *memCreds) Save(_ context.Context, token string) error {
	m.token = token
	return nil
}

func (m *memCreds) Delete(context.Context) error {
	m.token = ""
	return nil
}

type fakeVerifier struct {
	id  session.Identity
	err error
}

func (f fakeVerifier) Me(context.Context, string) (session.Identity, error) { return f.id, f.err }

type fakeBackend struct {
	loginID    session.Identity
	loginErr   error
	latest     []telemetry.SoldierReading
	history    []telemetry.SoldierReading
	profile    *telemetry.SoldierProfile
	soldiers   []telemetry.SoldierProfile
	commanders []telemetry.Commander
	submitErr  error

	registered []telemetry.SoldierProfile
	created    []api.NewCommander
}

func (f *fakeBackend) Login(_ context.Context, email, _ string) (string, session.Identity, error) {
	if f.loginErr != nil {
		return "", session.Identity{}, f.loginErr
	}
	id := f.loginID
	id.Email = email
	return "tok-1", id, nil
}

func (f *fakeBackend) LoadLatest(context.Context) ([]telemetry.SoldierReading, error) {
	return f.latest, nil
}

func (f *fakeBackend) LoadHistory(context.Context, string) ([]telemetry.SoldierReading, error) {
	return f.history, nil
}

func (f *fakeBackend) LoadProfile(context.Context, string) (telemetry.SoldierProfile, bool, error) {
	if f.profile == nil {
		return telemetry.SoldierProfile{}, false, nil
	}
	return *f.profile, true, nil
}

func (f *fakeBackend) Soldiers(context.Context) ([]telemetry.SoldierProfile, error) {
	return f.soldiers, nil
}

func (f *fakeBackend) RegisterSoldier(_ context.Context, p telemetry.SoldierProfile) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.registered = append(f.registered, p)
	return nil
}

func (f *fakeBackend) Commanders(context.Context) ([]telemetry.Commander, error) {
	return f.commanders, nil
}

func (f *fakeBackend) CreateCommander(_ context.Context, nc api.NewCommander) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.created = append(f.created, nc)
	return nil
}

var (
	commander  = session.Identity{Name: "Maj. Rao", Email: "rao@hq", Role: session.RoleCommander, Region: "NORTH"}
	superAdmin = session.Identity{Name: "Gen. Iyer", Email: "iyer@hq", Role: session.RoleSuperAdmin}
)

type harness struct {
	app     App
	program *fakeProgram
	creds   *memCreds
	backend *fakeBackend
	store   *session.Store
}

func newHarness(t *testing.T, start string, b *fakeBackend, v fakeVerifier) *harness {
	t.Helper()
	return newFeedHarness(t, start, b, v, nil)
}

// newFeedHarness is newHarness with screens bound to f.
func newFeedHarness(t *testing.T, start string, b *fakeBackend, v fakeVerifier, f *feed.Feed) *harness {
	t.Helper()
	log := quietLogger()
	creds := &memCreds{}
	store := session.NewStore(creds, v, log)
	app := NewApp(context.Background(), Deps{Store: store, Backend: b, Feed: f, Log: log}, guard.Resolve(start))
	p := &fakeProgram{}
	t.Cleanup(app.attach(p))
	return &harness{app: app, program: p, creds: creds, backend: b, store: store}
}

// send feeds msg to the app and runs the resulting commands to completion.
func (h *harness) send(msg tea.Msg) {
	m, cmd := h.app.Update(msg)
	h.app = m.(App)
	h.run(cmd)
}

func (h *harness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			h.run(c)
		}
	default:
		h.send(msg)
	}
}

// flush delivers store transitions queued on the fake program.
func (h *harness) flush() {
	for _, msg := range h.program.take() {
		if _, ok := msg.(sessionMsg); ok {
			h.send(msg)
		}
	}
}

func (h *harness) authenticate(id session.Identity) {
	h.send(sessionMsg{sess: session.Authenticated("tok-1", id), intent: session.IntentNone})
}

func enter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }

func key(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func reading(id string, sec int, risk telemetry.RiskLevel) telemetry.SoldierReading {
	return telemetry.SoldierReading{
		SoldierID:   id,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC),
		HeartRate:   80 + float64(sec),
		Temperature: 36.8,
		SpO2:        97,
		RiskLevel:   risk,
	}
}

func TestPendingRendersLoading(t *testing.T) {
	h := newHarness(t, "/", &fakeBackend{}, fakeVerifier{})
	h.send(navigateMsg{loc: guard.Location{Route: guard.RouteRoster}})
	if h.app.screen != nil {
		t.Fatalf("screen built while session pending")
	}
	if !strings.Contains(h.app.View(), "AUTHENTICATING SESSION...") {
		t.Fatalf("expected loading state, got:\n%s", h.app.View())
	}
}

func TestRejectedCredentialLandsOnLogin(t *testing.T) {
	h := newHarness(t, "/soldier/FC-001", &fakeBackend{}, fakeVerifier{err: api.ErrSessionVerify})
	h.creds.token = "expired"
	h.store.Bootstrap(context.Background(), false)
	h.flush()
	if len(h.program.msgs) != 0 {
		t.Fatalf("unexpected follow-up messages %v", h.program.msgs)
	}
	if _, ok := h.app.sess.Identity(); ok {
		t.Fatalf("session should be anonymous")
	}
	if h.creds.token != "expired" {
		t.Fatalf("rejected credential should stay persisted")
	}
	if got := h.app.Location().Route; got != guard.RouteLogin {
		t.Fatalf("expected login, got %s", got)
	}
	if _, ok := h.app.screen.(*loginScreen); !ok {
		t.Fatalf("expected login screen, got %T", h.app.screen)
	}
	if !strings.Contains(h.app.View(), "OPERATOR LOGIN") {
		t.Fatalf("login not rendered:\n%s", h.app.View())
	}
}

func TestRestoredIdentityWithoutRoleLandsOnLogin(t *testing.T) {
	h := newHarness(t, "/", &fakeBackend{}, fakeVerifier{id: session.Identity{Name: "x", Email: "x@hq"}})
	h.creds.token = "tok-1"
	h.store.Bootstrap(context.Background(), false)
	h.flush()
	if h.app.sess.State() != session.StateAnonymous {
		t.Fatalf("expected anonymous session, got %s", h.app.sess.State())
	}
	if _, ok := h.app.screen.(*loginScreen); !ok {
		t.Fatalf("expected login screen, got %T", h.app.screen)
	}
	if h.creds.token != "tok-1" {
		t.Fatalf("credential should stay persisted")
	}
}

func TestRestoredSessionLeavesLogin(t *testing.T) {
	h := newHarness(t, "/login", &fakeBackend{}, fakeVerifier{id: superAdmin})
	h.creds.token = "tok-1"
	h.store.Bootstrap(context.Background(), true)
	h.flush()
	if got := h.app.Location().Route; got != guard.RouteAdminHQ {
		t.Fatalf("expected admin HQ, got %s", got)
	}
}

func TestLoginShowsCriticalBanner(t *testing.T) {
	b := &fakeBackend{
		loginID: commander,
		latest: []telemetry.SoldierReading{
			reading("FC-001", 3, telemetry.RiskNormal),
			reading("FC-002", 2, telemetry.RiskCritical),
			reading("FC-003", 1, ""),
		},
	}
	h := newHarness(t, "/", b, fakeVerifier{})
	h.store.Bootstrap(context.Background(), false)
	h.flush()

	login := h.app.screen.(*loginScreen)
	login.form.inputs[0].SetValue("rao@hq")
	login.form.inputs[1].SetValue("secret")
	login.form.setFocus(1)
	h.send(enter())
	h.flush()

	if h.creds.token != "tok-1" {
		t.Fatalf("credential not persisted: %q", h.creds.token)
	}
	dash, ok := h.app.screen.(*dashboardScreen)
	if !ok {
		t.Fatalf("expected dashboard, got %T", h.app.screen)
	}
	if len(dash.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(dash.rows))
	}
	view := h.app.View()
	for _, want := range []string{"> FC-002 :: BIOMETRIC THRESHOLD EXCEEDED", "SECTOR: NORTH", "CRITICAL 1"} {
		if !strings.Contains(view, want) {
			t.Fatalf("missing %q in:\n%s", want, view)
		}
	}
	if strings.Contains(view, "FC-001 :: BIOMETRIC") {
		t.Fatalf("non-critical unit in banner")
	}
}

func TestLoginFailureMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{api.ErrAuth, msgAuthFailed},
		{&api.NetworkError{Op: "login", Err: errors.New("refused")}, msgUplinkFailed},
	}
	for _, tc := range cases {
		h := newHarness(t, "/login", &fakeBackend{loginErr: tc.err}, fakeVerifier{})
		h.store.Bootstrap(context.Background(), true)
		h.flush()
		login := h.app.screen.(*loginScreen)
		login.form.inputs[0].SetValue("x@hq")
		login.form.inputs[1].SetValue("bad")
		login.form.setFocus(1)
		h.send(enter())
		if !strings.Contains(h.app.View(), tc.want) {
			t.Fatalf("expected %q, got:\n%s", tc.want, h.app.View())
		}
		if h.app.Location().Route != guard.RouteLogin {
			t.Fatalf("left login after failure")
		}
	}
}

func TestRoleRedirects(t *testing.T) {
	h := newHarness(t, "/admin-hq", &fakeBackend{}, fakeVerifier{})
	h.authenticate(commander)
	if got := h.app.Location().Route; got != guard.RouteHome {
		t.Fatalf("commander on admin HQ: expected home, got %s", got)
	}

	h = newHarness(t, "/roster", &fakeBackend{}, fakeVerifier{})
	h.authenticate(superAdmin)
	if got := h.app.Location().Route; got != guard.RouteAdminHQ {
		t.Fatalf("super admin on roster: expected admin HQ, got %s", got)
	}
}

func TestLeavingScreenClosesViewAndDropsResults(t *testing.T) {
	h := newHarness(t, "/", &fakeBackend{}, fakeVerifier{})
	h.authenticate(commander)
	dash := h.app.screen.(*dashboardScreen)
	oldGen := h.app.gen

	h.send(navigateMsg{loc: guard.Location{Route: guard.RouteRoster}})
	if !dash.view.Closed() {
		t.Fatalf("dashboard view not closed on exit")
	}
	h.send(loadDoneMsg{scoped: scoped{oldGen}, err: errors.New("late")})
	if _, ok := h.app.screen.(*rosterScreen); !ok {
		t.Fatalf("expected roster, got %T", h.app.screen)
	}
}

func TestDetailUnknownPersonnel(t *testing.T) {
	h := newHarness(t, "/soldier/FC-009", &fakeBackend{}, fakeVerifier{})
	h.authenticate(commander)
	view := h.app.View()
	if !strings.Contains(view, "FC-009 // "+telemetry.UnknownPersonnel) {
		t.Fatalf("expected unknown personnel header:\n%s", view)
	}
	if !strings.Contains(view, emptyTileValue) {
		t.Fatalf("expected placeholder tiles:\n%s", view)
	}
}

func TestDetailProfileAndHistory(t *testing.T) {
	b := &fakeBackend{
		profile: &telemetry.SoldierProfile{SoldierID: "FC-001", Name: "Arjun Singh", Rank: "Sergeant", Unit: "Alpha", BloodGroup: "O+"},
		history: []telemetry.SoldierReading{
			reading("FC-001", 1, telemetry.RiskNormal),
			reading("FC-001", 2, telemetry.RiskWarning),
		},
	}
	h := newHarness(t, "/soldier/FC-001", b, fakeVerifier{})
	h.authenticate(commander)
	view := h.app.View()
	for _, want := range []string{"Arjun Singh", "Sergeant", "BLOOD O+", "82 BPM", "WARNING"} {
		if !strings.Contains(view, want) {
			t.Fatalf("missing %q in:\n%s", want, view)
		}
	}
	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	if h.app.Location().Route != guard.RouteHome {
		t.Fatalf("esc should return home")
	}
}

func TestLogoutReturnsToLogin(t *testing.T) {
	h := newHarness(t, "/", &fakeBackend{}, fakeVerifier{})
	h.creds.token = "tok-1"
	h.authenticate(commander)
	h.send(tea.KeyMsg{Type: tea.KeyCtrlX})
	h.flush()
	if h.creds.token != "" {
		t.Fatalf("credential not deleted")
	}
	if h.app.Location().Route != guard.RouteLogin {
		t.Fatalf("expected login after logout, got %s", h.app.Location().Route)
	}
}

func TestRegisterSoldier(t *testing.T) {
	b := &fakeBackend{}
	h := newHarness(t, "/register", b, fakeVerifier{})
	h.authenticate(commander)
	reg := h.app.screen.(*registerScreen)
	reg.form.inputs[fieldSoldierID].SetValue("FC-007")
	reg.form.inputs[fieldName].SetValue("Kabir Das")
	reg.form.inputs[fieldBlood].SetValue("ab-")
	reg.form.setFocus(fieldBlood)
	h.send(tea.KeyMsg{Type: tea.KeyPgDown})
	h.send(tea.KeyMsg{Type: tea.KeyCtrlT})
	h.send(enter())

	if len(b.registered) != 1 {
		t.Fatalf("expected one registration, got %d", len(b.registered))
	}
	got := b.registered[0]
	if got.Rank != telemetry.Ranks[1] || got.Role != telemetry.PersonnelMedic || got.BloodGroup != "AB-" {
		t.Fatalf("unexpected profile %+v", got)
	}
	if !strings.Contains(h.app.View(), "PERSONNEL LINKED: FC-007") {
		t.Fatalf("missing confirmation:\n%s", h.app.View())
	}
}

func TestRegisterShowsServerMessage(t *testing.T) {
	b := &fakeBackend{submitErr: &api.ServerError{Op: "register", Status: 409, Message: "Soldier ID already linked"}}
	h := newHarness(t, "/register", b, fakeVerifier{})
	h.authenticate(commander)
	reg := h.app.screen.(*registerScreen)
	reg.form.inputs[fieldSoldierID].SetValue("FC-001")
	reg.form.inputs[fieldName].SetValue("Dup")
	reg.form.setFocus(fieldBlood)
	h.send(enter())
	if !strings.Contains(h.app.View(), "Soldier ID already linked") {
		t.Fatalf("server message not shown:\n%s", h.app.View())
	}

	b.submitErr = errors.New("boom")
	h.send(enter())
	if !strings.Contains(h.app.View(), msgRegistrationFailed) {
		t.Fatalf("fallback not shown:\n%s", h.app.View())
	}
}

func TestAdminCreateCommander(t *testing.T) {
	b := &fakeBackend{commanders: []telemetry.Commander{{Name: "A", Email: "a@hq", Region: "EAST"}}}
	h := newHarness(t, "/admin-hq", b, fakeVerifier{})
	h.authenticate(superAdmin)
	adm := h.app.screen.(*adminScreen)
	if adm.count != 1 {
		t.Fatalf("expected 1 commander listed, got %d", adm.count)
	}

	h.send(key("c"))
	adm.form.inputs[0].SetValue("B")
	adm.form.inputs[1].SetValue("b@hq")
	adm.form.inputs[2].SetValue("pw")
	adm.form.setFocus(3)
	b.commanders = append(b.commanders, telemetry.Commander{Name: "B", Email: "b@hq"})
	h.send(enter())

	if len(b.created) != 1 || b.created[0].Email != "b@hq" {
		t.Fatalf("unexpected create calls %+v", b.created)
	}
	if adm.count != 2 {
		t.Fatalf("list not refreshed, count %d", adm.count)
	}

	b.submitErr = errors.New("forbidden")
	h.send(key("c"))
	adm.form.inputs[0].SetValue("C")
	adm.form.inputs[1].SetValue("c@hq")
	adm.form.inputs[2].SetValue("pw")
	adm.form.setFocus(3)
	h.send(enter())
	if !strings.Contains(h.app.View(), msgClearanceFailed) {
		t.Fatalf("expected clearance failure:\n%s", h.app.View())
	}
}

func TestSectorsGroupByRegion(t *testing.T) {
	b := &fakeBackend{commanders: []telemetry.Commander{
		{Name: "A", Email: "a@hq", Region: "EAST"},
		{Name: "B", Email: "b@hq"},
		{Name: "C", Email: "c@hq", Region: "EAST"},
	}}
	h := newHarness(t, "/sectors", b, fakeVerifier{})
	h.authenticate(superAdmin)
	view := h.app.View()
	for _, want := range []string{"2 active sectors", "EAST", "GENERAL RESERVE"} {
		if !strings.Contains(view, want) {
			t.Fatalf("missing %q in:\n%s", want, view)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline([]float64{1, 2, 3}, 10); got != "▁▄█" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := sparkline([]float64{5, 5}, 10); got != "▁▁" {
		t.Fatalf("flat series: %q", got)
	}
	if got := sparkline([]float64{1, 2, 3, 4}, 2); len([]rune(got)) != 2 {
		t.Fatalf("width not respected: %q", got)
	}
}
