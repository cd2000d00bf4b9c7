package auth

import (
	"strings"
	"time"
)

// Role distinguishes the two sides of the four-eyes workflow.
type Role string

const (
	// RoleMaker creates and submits cases.
	RoleMaker Role = "MAKER"
	// RoleChecker reviews submitted cases; never its own.
	RoleChecker Role = "CHECKER"
	// RoleSystem marks automated actions such as the post-submit review.
	RoleSystem Role = "SYSTEM"
)

// ParseRole normalizes a raw role string to a known Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleMaker:
		return RoleMaker, true
	case RoleChecker:
		return RoleChecker, true
	default:
		return "", false
	}
}

// User is an operator account able to authenticate against the service.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated principal carried through request context.
type Identity struct {
	UserID   string
	FullName string
	Role     Role
}
