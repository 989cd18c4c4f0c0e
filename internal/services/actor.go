package services

const (
	RoleAdmin      = "admin"
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

// Actor is the authenticated caller of a user-facing operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
