package session

import "time"

// State is the lifecycle state of the process-wide session.
type State int

const (
	// StatePending means bootstrap has not finished; no guard decision is trusted yet.
	StatePending State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is an immutable view of who is logged in. An identity is present
// exactly when a credential is.
type Session struct {
	state      State
	identity   Identity
	credential string
	expiresAt  time.Time
}

// Pending returns the session held while bootstrap is in flight.
func Pending() Session { return Session{state: StatePending} }

// Anonymous returns an unauthenticated session.
func Anonymous() Session { return Session{state: StateAnonymous} }

// Authenticated returns a session for id holding credential. An empty
// credential yields an anonymous session.
func Authenticated(credential string, id Identity) Session {
	if credential == "" {
		return Anonymous()
	}
	s := Session{state: StateAuthenticated, identity: id, credential: credential}
	if exp, ok := TokenExpiry(credential); ok {
		s.expiresAt = exp
	}
	return s
}

// State returns the lifecycle state.
func (s Session) State() State { return s.state }

// Identity returns the operator identity, if authenticated.
func (s Session) Identity() (Identity, bool) {
	return s.identity, s.state == StateAuthenticated
}

// Role returns the operator role, or RoleNone when not authenticated.
func (s Session) Role() Role {
	if s.state != StateAuthenticated {
		return RoleNone
	}
	return s.identity.Role
}

// Credential returns the bearer token, or "" when not authenticated.
func (s Session) Credential() string { return s.credential }

// ExpiresAt returns the token expiry decoded from its claims, if any.
func (s Session) ExpiresAt() (time.Time, bool) {
	return s.expiresAt, !s.expiresAt.IsZero()
}
