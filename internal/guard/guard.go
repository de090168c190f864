// Package guard decides whether the current session may enter a route.
package guard

import (
	"fmt"
	"strings"

	"vitalsops/internal/session"
)

// Route names a console screen.
type Route string

const (
	RouteLogin    Route = "login"
	RouteHome     Route = "home"
	RouteRoster   Route = "roster"
	RouteRegister Route = "register"
	RouteSoldier  Route = "soldier"
	RouteAdminHQ  Route = "admin-hq"
	RouteSectors  Route = "sectors"
)

// requiredRoles maps each route to the role it demands; RoleNone is public.
var requiredRoles = map[Route]session.Role{
	RouteLogin:    session.RoleNone,
	RouteHome:     session.RoleCommander,
	RouteRoster:   session.RoleCommander,
	RouteRegister: session.RoleCommander,
	RouteSoldier:  session.RoleCommander,
	RouteAdminHQ:  session.RoleSuperAdmin,
	RouteSectors:  session.RoleSuperAdmin,
}

// RequiredRole returns the role a route demands. Unknown routes are public
// because they resolve to login.
func RequiredRole(r Route) session.Role {
	return requiredRoles[r]
}

// HomeFor returns the landing route of a role. The switch covers every role
// in session.Roles; the default only serves the zero value.
func HomeFor(role session.Role) Route {
	switch role {
	case session.RoleSuperAdmin:
		return RouteAdminHQ
	case session.RoleCommander:
		return RouteHome
	default:
		return RouteLogin
	}
}

// Kind classifies a guard decision.
type Kind int

const (
	// Wait means the session is still bootstrapping; render a loading state.
	Wait Kind = iota
	Allow
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Wait:
		return "WAIT"
	case Allow:
		return "ALLOW"
	case Redirect:
		return "REDIRECT"
	default:
		return "UNKNOWN"
	}
}

// Decision is the guard outcome. Target is set only for Redirect.
type Decision struct {
	Kind   Kind
	Target Route
}

func (d Decision) String() string {
	if d.Kind == Redirect {
		return fmt.Sprintf("REDIRECT(%s)", d.Target)
	}
	return d.Kind.String()
}

// Decide is total and side-effect free.
func Decide(s session.Session, required session.Role) Decision {
	if s.State() == session.StatePending {
		return Decision{Kind: Wait}
	}
	if _, ok := s.Identity(); !ok {
		return Decision{Kind: Redirect, Target: RouteLogin}
	}
	if required == session.RoleNone || s.Role() == required {
		return Decision{Kind: Allow}
	}
	return Decision{Kind: Redirect, Target: HomeFor(s.Role())}
}

// DecideRoute applies Decide with the route's required role.
func DecideRoute(s session.Session, r Route) Decision {
	return Decide(s, RequiredRole(r))
}

// Location is a resolved path: a route plus its parameter, if any.
type Location struct {
	Route Route
	Param string
}

// Resolve maps a console path such as "/soldier/FC-001" to a route.
// Unknown paths fall back to login.
func Resolve(path string) Location {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "":
		return Location{Route: RouteHome}
	case len(parts) == 2 && parts[0] == string(RouteSoldier) && parts[1] != "":
		return Location{Route: RouteSoldier, Param: parts[1]}
	case len(parts) == 1:
		r := Route(parts[0])
		if _, ok := requiredRoles[r]; ok && r != RouteSoldier && r != RouteHome {
			return Location{Route: r}
		}
	}
	return Location{Route: RouteLogin}
}

// Path renders a location back to its path form.
func (l Location) Path() string {
	switch l.Route {
	case RouteHome:
		return "/"
	case RouteSoldier:
		return "/soldier/" + l.Param
	default:
		return "/" + string(l.Route)
	}
}
