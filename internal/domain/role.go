package domain

import "fmt"

// Role is the closed set of actor kinds that may act on a case.
type Role string

const (
	RoleClient   Role = "client"
	RoleDesigner Role = "designer"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleClient, RoleDesigner, RoleAdmin, RoleSystem:
		return r, nil
	}
	return "", fmt.Errorf("unknown actor role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Actor is the authenticated entity requesting a change.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is used by background consumers that act on behalf of the platform.
func SystemActor(name string) Actor {
	return Actor{ID: name, Role: RoleSystem}
}
