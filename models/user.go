package models

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleMarketing Role = "marketing"
	RoleViewer    Role = "viewer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMarketing || r == RoleViewer
}

// Plan is informational only: it does not gate any operation.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro
}

// User represents a staff account in the dashboard
type User struct {
	gorm.Model

	// Authentication fields. Email is stored lowercased.
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"default:1" json:"-"`

	// Profile information
	FirstName string `gorm:"size:150" json:"first_name"`
	LastName  string `gorm:"size:150" json:"last_name"`

	// Access
	Role        Role `gorm:"size:20;not null;default:'viewer'" json:"role"`
	Plan        Plan `gorm:"size:20;not null;default:'free'" json:"plan"`
	IsActive    bool `gorm:"default:true" json:"is_active"`
	IsStaff     bool `gorm:"default:false" json:"is_staff"`
	IsSuperuser bool `gorm:"default:false;index" json:"is_superuser"`

	// Relations
	Memberships []ProjectMember `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// RefreshToken tracks issued refresh tokens so they can be rotated and revoked.
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	JTI       string     `gorm:"column:jti;size:36;not null;uniqueIndex" json:"jti"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
	UserAgent string     `gorm:"size:255" json:"user_agent"`
	IP        string     `gorm:"size:64" json:"ip"`
	CreatedAt time.Time  `json:"created_at"`
}
