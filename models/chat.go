package models

import (
	"strings"
	"time"
)

// SenderKind identifies who wrote a chat message.
type SenderKind string

const (
	SenderVisitor SenderKind = "visitor"
	SenderStaff   SenderKind = "staff"
	SenderSystem  SenderKind = "system"
)

// ParseSenderKind accepts the current names and the legacy user/admin aliases.
// An empty string means visitor.
func ParseSenderKind(s string) (SenderKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "visitor", "user":
		return SenderVisitor, true
	case "staff", "admin":
		return SenderStaff, true
	case "system":
		return SenderSystem, true
	}
	return "", false
}

// ChatSession is a visitor conversation. It has no status: recency of
// UpdatedAt is what makes a session "active".
type ChatSession struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ProjectID uint   `gorm:"not null;index" json:"project_id"`
	ChannelID *uint  `gorm:"index" json:"channel_id"`
	ClientID  string `gorm:"size:100;not null;index" json:"client_id"`

	PageURL    *string `gorm:"size:500" json:"page_url"`
	DeviceType string  `gorm:"size:20;default:'desktop'" json:"device_type"`
	Language   string  `gorm:"size:10;default:'en'" json:"language"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`

	Project  Project       `json:"-"`
	Messages []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// ChatMessage belongs to one session. Messages are ordered by
// (created_at, id).
type ChatMessage struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SessionID uint       `gorm:"not null;index:ix_chat_message_order,priority:1" json:"session_id"`
	Kind      SenderKind `gorm:"column:message_type;size:10;not null" json:"message_type"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	IsRead    bool       `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time  `gorm:"index:ix_chat_message_order,priority:2" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
