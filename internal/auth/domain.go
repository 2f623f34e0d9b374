package auth

import "time"

// Roles stored in users.role and carried in the session identity.
const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleOwner || role == RoleStaff
}

// User represents an authenticated user account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Profile is the public view of a user.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}
