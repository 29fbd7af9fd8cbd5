package models

// Role is the closed set of platform roles.
type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleAdmin
}

// Actor is the identity performing an operation, resolved from the users table.
type Actor struct {
	UserID uint
	Role   Role
	TeamID *uint
}

// ActorFor builds the actor view of a user.
func ActorFor(u *User) Actor {
	return Actor{UserID: u.ID, Role: u.Role, TeamID: u.TeamID}
}

// IsAdmin reports whether the actor bypasses team checks.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsCaptainOf reports whether the actor captains team t.
func (a Actor) IsCaptainOf(t *Team) bool {
	return t != nil && t.CaptainID != nil && *t.CaptainID == a.UserID
}

// InTeam reports whether the actor is a member of the given team.
func (a Actor) InTeam(teamID uint) bool {
	return a.TeamID != nil && *a.TeamID == teamID
}

// CanView reports whether the actor may read data scoped to teamID.
func (a Actor) CanView(teamID uint) bool {
	return a.IsAdmin() || a.InTeam(teamID)
}
