package domain

// Role names carried on the user record and in JWT claims.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
