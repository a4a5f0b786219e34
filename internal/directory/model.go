package directory

import "time"

// Role is the permission class of a user
type Role string

const (
	RoleTenant Role = "tenant"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	// RoleSystem is used by scheduled jobs acting without a request
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleTenant, RoleOwner, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Language is a user's preferred content language
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSwahili Language = "sw"
)

// Principal is the resolved identity of the caller
type Principal struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// System is the principal used by batch jobs
var System = Principal{Role: RoleSystem}

// IsStaff reports whether the principal may act on any record
func (p Principal) IsStaff() bool {
	return p.Role == RoleAdmin || p.Role == RoleSystem
}

// User is the directory entry for a tenant, owner or admin
type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	Phone             string    `json:"phone,omitempty"`
	Role              Role      `json:"role"`
	PreferredLanguage Language  `json:"preferred_language"`
	CreatedAt         time.Time `json:"created_at"`
}
