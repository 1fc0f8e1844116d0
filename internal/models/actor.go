// internal/models/actor.go
package models

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// SystemActorID identifies automated callers (workers, scheduler).
const SystemActorID = "system"

// Actor is the authorization context passed to every mutating call.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor is the given user acting for themselves.
func (a Actor) Owns(userID string) bool {
	return a.Role == RoleUser && a.ID != "" && a.ID == userID
}

// SystemActor returns the admin-level actor used by automated paths.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Role: RoleAdmin}
}

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), true
	}
	return "", false
}
