package domain

import "github.com/google/uuid"

// Role is the caller's role as resolved by the external identity provider.
type Role string

// Known roles
const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleUser       Role = "user"
)

// Actor is whoever is asking for a mutation. Elevated actors may act on
// boards and tasks they do not own.
type Actor struct {
	ID        uuid.UUID
	Role      Role
	CompanyID *uuid.UUID
	Elevated  bool
}

// SystemActor is the engine itself acting on behalf of the scheduler.
func SystemActor() Actor {
	return Actor{Elevated: true}
}

// IsSystem reports whether the actor is the engine rather than a person.
func (a Actor) IsSystem() bool {
	return a.ID == uuid.Nil
}
