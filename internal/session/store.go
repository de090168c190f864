package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Verifier checks a persisted credential against the backend.
type Verifier interface {
	Me(ctx context.Context, credential string) (Identity, error)
}

// Intent is a navigation request emitted by the store. The store never
// navigates itself; the screen layer maps intents to routes.
type Intent int

const (
	IntentNone Intent = iota
	// IntentHome asks for the home route of the current role.
	IntentHome
	// IntentLogin asks for the login route.
	IntentLogin
)

// Listener observes session transitions.
type Listener func(Session, Intent)

// Store is the single source of truth for who is logged in. One instance is
// created at start-up and shared by every screen; all mutations go through
// Bootstrap, Login and Logout.
type Store struct {
	creds    CredentialStore
	verifier Verifier
	log      *slog.Logger

	mu        sync.Mutex
	sess      Session
	listeners map[int]Listener
	nextID    int
}

// NewStore returns a store in the pending state.
func NewStore(creds CredentialStore, verifier Verifier, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		creds:     creds,
		verifier:  verifier,
		log:       log,
		sess:      Pending(),
		listeners: make(map[int]Listener),
	}
}

// Snapshot returns the current session.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// Subscribe registers fn for every transition and returns its cancel func.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Bootstrap restores the session from the persisted credential. It always
// leaves the pending state. A credential the backend rejects, or one whose
// identity carries no known role, leaves the session anonymous but stays
// persisted: "could not verify now" is not a logout. onLogin reports whether the caller is currently on the login route.
func (s *Store) Bootstrap(ctx context.Context, onLogin bool) Intent {
	token, err := s.creds.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			s.log.Warn("[Session] credential unreadable", "err", err)
		}
		s.set(Anonymous(), IntentNone)
		return IntentNone
	}

	id, err := s.verifier.Me(ctx, token)
	if err == nil {
		_, err = ParseRole(string(id.Role))
	}
	if err != nil {
		s.log.Warn("[Session] stored credential not verified", "err", err)
		s.set(Anonymous(), IntentNone)
		return IntentNone
	}

	intent := IntentNone
	if onLogin {
		intent = IntentHome
	}
	s.log.Info("[Session] restored", "operator", id.Email, "role", id.Role)
	s.set(Authenticated(token, id), intent)
	return intent
}

// Login persists credential and authenticates the session.
func (s *Store) Login(ctx context.Context, credential string, id Identity) (Intent, error) {
	if credential == "" {
		return IntentNone, errors.New("session: empty credential")
	}
	if _, err := ParseRole(string(id.Role)); err != nil {
		return IntentNone, err
	}
	if err := s.creds.Save(ctx, credential); err != nil {
		return IntentNone, err
	}
	s.log.Info("[Session] logged in", "operator", id.Email, "role", id.Role)
	s.set(Authenticated(credential, id), IntentHome)
	return IntentHome, nil
}

// Logout forgets the persisted credential and clears the session. The
// session is cleared even when the credential cannot be deleted.
func (s *Store) Logout(ctx context.Context) (Intent, error) {
	err := s.creds.Delete(ctx)
	if err != nil {
		s.log.Error("[Session] credential delete failed", "err", err)
	}
	s.set(Anonymous(), IntentLogin)
	return IntentLogin, err
}

func (s *Store) set(next Session, intent Intent) {
	s.mu.Lock()
	s.sess = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(next, intent)
	}
}
