package models

import (
	"time"

	"gorm.io/datatypes"
)

// ABTest is a widget experiment. TrafficPercentage (0-100) is the share of
// users admitted to the test at all.
type ABTest struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ProjectID         uint      `gorm:"not null;index" json:"project_id"`
	Name              string    `gorm:"size:100;not null" json:"name"`
	TrafficPercentage int       `gorm:"not null" json:"traffic_percentage"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Variants []ABTestVariant `gorm:"foreignKey:ABTestID" json:"variants"`
}

// ABTestVariant is one arm of a test. Weights are relative and normalised at
// assignment time.
type ABTestVariant struct {
	ID           uint                      `gorm:"primaryKey" json:"id"`
	ABTestID     uint                      `gorm:"column:ab_test_id;not null;index" json:"ab_test_id"`
	Name         string                    `gorm:"size:100;not null" json:"name"`
	ChannelOrder datatypes.JSONSlice[uint] `json:"channel_order"`
	CopyText     datatypes.JSONMap         `json:"copy_text"`
	IsControl    bool                      `gorm:"default:false" json:"is_control"`
	Weight       int                       `gorm:"not null" json:"weight"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// UserVariant is the sticky assignment of a user to a variant. Unique per
// (user, test); rows are created once and never overwritten.
type UserVariant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_user_variant,priority:1" json:"user_id"`
	ABTestID  uint      `gorm:"column:ab_test_id;not null;uniqueIndex:ux_user_variant,priority:2" json:"ab_test_id"`
	VariantID uint      `gorm:"not null;index" json:"variant_id"`
	CreatedAt time.Time `json:"created_at"`

	Variant ABTestVariant `gorm:"foreignKey:VariantID" json:"variant"`
}

// ABTestExclusion records that the traffic gate kept a user out of a test.
type ABTestExclusion struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_ab_exclusion,priority:1" json:"user_id"`
	ABTestID  uint      `gorm:"column:ab_test_id;not null;uniqueIndex:ux_ab_exclusion,priority:2" json:"ab_test_id"`
	CreatedAt time.Time `json:"created_at"`
}
