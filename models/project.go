package models

import "time"

// Project is a tenant: a customer account that owns channels, leads,
// chat sessions, schedules and A/B tests.
type Project struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Timezone string `gorm:"size:50;not null;default:'UTC'" json:"timezone"`

	// Outbound notifications. The secret is stored encrypted.
	WebhookURL    *string `gorm:"size:500" json:"webhook_url"`
	WebhookSecret *string `gorm:"size:255" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Members []ProjectMember `gorm:"foreignKey:ProjectID" json:"members,omitempty"`
}

// HasWebhook reports whether intake notifications should be delivered.
func (p *Project) HasWebhook() bool {
	return p.WebhookURL != nil && *p.WebhookURL != ""
}

// ProjectMember links a staff user to a project they may access.
type ProjectMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:ux_project_member,priority:1" json:"project_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_project_member,priority:2;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Project Project `json:"-"`
	User    User    `json:"-"`
}
