package session

import (
	"encoding/json"
	"fmt"
)

// Role is the operator's portal role. The set is closed: adding a role means
// adding a constant here, to Roles, and a home route in the guard.
type Role string

const (
	// RoleNone marks a route without a role requirement.
	RoleNone       Role = ""
	RoleCommander  Role = "COMMANDER"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Roles lists every role an authenticated operator can hold.
var Roles = []Role{RoleCommander, RoleSuperAdmin}

// ParseRole validates a role string from the backend.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return RoleNone, fmt.Errorf("session: unknown role %q", s)
}

// UnmarshalJSON rejects roles outside the closed set.
func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Identity is the authenticated operator as reported by the backend.
type Identity struct {
	ID     string `json:"_id,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Region string `json:"region,omitempty"`
}

// Sector returns the operator's region for display.
func (id Identity) Sector() string {
	if id.Region == "" {
		return "UNASSIGNED"
	}
	return id.Region
}
