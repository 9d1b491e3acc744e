package models

import "time"

// ChannelKind is the contact method a channel represents.
type ChannelKind string

const (
	ChannelCall      ChannelKind = "call"
	ChannelCallback  ChannelKind = "callback"
	ChannelMessenger ChannelKind = "messenger"
	ChannelChat      ChannelKind = "chat"
	ChannelForm      ChannelKind = "form"
)

// Valid reports whether k is one of the known channel kinds.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelCall, ChannelCallback, ChannelMessenger, ChannelChat, ChannelForm:
		return true
	}
	return false
}

// Channel is a configured contact method shown in the widget.
type Channel struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	ProjectID uint        `gorm:"not null;index;uniqueIndex:ux_channel_default,priority:1" json:"project_id"`
	Type      ChannelKind `gorm:"size:20;not null;index" json:"type"`
	Label     string      `gorm:"size:100;not null" json:"label"`

	Link         *string `gorm:"size:200" json:"link"`
	PhoneNumber  *string `gorm:"size:20" json:"phone_number"`
	OnlinePolicy *string `gorm:"size:100" json:"online_policy"`
	ShowInTop    bool    `gorm:"default:false" json:"show_in_top"`
	Priority     int     `gorm:"default:0;index" json:"priority"`
	IsActive     bool    `gorm:"not null;index" json:"is_active"`
	Icon         *string `gorm:"size:50" json:"icon"`
	Description  *string `gorm:"type:text" json:"description"`

	// DefaultFor is set only on channels created implicitly by intake; at most
	// one such channel exists per (project, kind). NULLs never collide.
	DefaultFor *string `gorm:"size:20;uniqueIndex:ux_channel_default,priority:2" json:"default_for,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Project Project `json:"-"`
}
