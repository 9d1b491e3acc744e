package models

import "time"

// Weekday is the lowercase English day name used in schedule rows.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdays = [...]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// WeekdayOf maps a time.Weekday onto the schedule enum.
func WeekdayOf(d time.Weekday) Weekday {
	return weekdays[d]
}

func (w Weekday) Valid() bool {
	for _, d := range weekdays {
		if d == w {
			return true
		}
	}
	return false
}

// Schedule is a project's working hours for one weekday. Times are local to
// the project timezone and formatted "HH:MM" or "HH:MM:SS".
type Schedule struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProjectID    uint      `gorm:"not null;uniqueIndex:ux_schedule_day,priority:1" json:"project_id"`
	Day          Weekday   `gorm:"size:10;not null;uniqueIndex:ux_schedule_day,priority:2" json:"day"`
	StartTime    string    `gorm:"size:8;not null" json:"start_time"`
	EndTime      string    `gorm:"size:8;not null" json:"end_time"`
	IsWorkingDay bool      `gorm:"not null" json:"is_working_day"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
