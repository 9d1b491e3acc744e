package models

import "time"

// Attribution captures where an inbound contact came from.
type Attribution struct {
	UTMSource   *string `gorm:"size:100" json:"utm_source"`
	UTMMedium   *string `gorm:"size:100" json:"utm_medium"`
	UTMCampaign *string `gorm:"size:100" json:"utm_campaign"`
	PageURL     *string `gorm:"size:500" json:"page_url"`
	ClientID    *string `gorm:"size:100" json:"client_id"`
	DeviceType  string  `gorm:"size:20;default:'desktop'" json:"device_type"`
	Language    string  `gorm:"size:10;default:'en'" json:"language"`
}

// Lead is a contact request captured through the widget form.
// Only Processed changes after creation.
type Lead struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ProjectID uint   `gorm:"not null;index" json:"project_id"`
	ChannelID uint   `gorm:"not null;index" json:"channel_id"`
	Contact   string `gorm:"size:100;not null" json:"contact"`
	Message   string `gorm:"type:text" json:"message"`

	Attribution `gorm:"embedded"`

	Processed bool      `gorm:"default:false;index" json:"processed"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Project Project `json:"-"`
	Channel Channel `json:"-"`
}

// CallbackRequest is a visitor asking to be called back.
type CallbackRequest struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ProjectID     uint       `gorm:"not null;index" json:"project_id"`
	ChannelID     uint       `gorm:"not null;index" json:"channel_id"`
	Phone         string     `gorm:"size:20;not null" json:"phone"`
	PreferredTime *time.Time `json:"preferred_time"`
	Message       string     `gorm:"type:text" json:"message"`

	Attribution `gorm:"embedded"`

	Processed bool      `gorm:"default:false;index" json:"processed"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Project Project `json:"-"`
	Channel Channel `json:"-"`
}
