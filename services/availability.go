package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"widgethub/models"

	"gorm.io/gorm"
)

// Fixed business hours used when a project has no schedule rows.
const (
	fallbackOpen  = "09:00"
	fallbackClose = "18:00"
)

// Availability is the widget's online status. NextAvailable is a local
// "HH:MM" time and is nil while online or when no working day is known.
type Availability struct {
	IsOnline      bool    `json:"is_online"`
	NextAvailable *string `json:"next_available"`
}

// AvailabilityEvaluator computes online status from a project's timezone and
// weekly schedule.
type AvailabilityEvaluator struct {
	db *gorm.DB
}

func NewAvailabilityEvaluator(db *gorm.DB) *AvailabilityEvaluator {
	return &AvailabilityEvaluator{db: db}
}

// ComputeAvailability evaluates the project's hours at now.
func (a *AvailabilityEvaluator) ComputeAvailability(ctx context.Context, projectID uint, now time.Time) (*Availability, error) {
	db := a.db.WithContext(ctx)
	project, err := findProject(db, projectID)
	if err != nil {
		return nil, err
	}
	var rows []models.Schedule
	if err := db.Where("project_id = ?", projectID).Find(&rows).Error; err != nil {
		return nil, internal("failed to load schedule", err)
	}
	loc, err := LoadLocation(project.Timezone)
	if err != nil {
		return nil, err
	}
	result := evaluate(rows, now.In(loc))
	return &result, nil
}

// LoadLocation resolves an IANA timezone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalid("unknown timezone %q", name)
	}
	return loc, nil
}

// evaluate is the pure part of the computation; local is already in the
// project timezone.
func evaluate(rows []models.Schedule, local time.Time) Availability {
	tod := secondsOfDay(local)

	if len(rows) == 0 {
		wd := local.Weekday()
		open, _ := parseTimeOfDay(fallbackOpen)
		closeAt, _ := parseTimeOfDay(fallbackClose)
		if wd >= time.Monday && wd <= time.Friday && tod >= open && tod <= closeAt {
			return Availability{IsOnline: true}
		}
		next := fallbackOpen
		return Availability{NextAvailable: &next}
	}

	byDay := make(map[models.Weekday]models.Schedule, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r
	}

	today, ok := byDay[models.WeekdayOf(local.Weekday())]
	if !ok {
		return Availability{NextAvailable: nextWorkingStart(byDay, local.Weekday())}
	}

	// With a row for today, any offline outcome reports that row's start.
	start, errStart := parseTimeOfDay(today.StartTime)
	end, errEnd := parseTimeOfDay(today.EndTime)
	if errStart != nil || errEnd != nil {
		next := today.StartTime
		return Availability{NextAvailable: &next}
	}
	// An overnight row (start after end) is treated as misconfigured and
	// never reports online.
	if today.IsWorkingDay && start <= end && tod >= start && tod <= end {
		return Availability{IsOnline: true}
	}
	next := formatTimeOfDay(start)
	return Availability{NextAvailable: &next}
}

// nextWorkingStart looks up to a week ahead for a working day row.
func nextWorkingStart(byDay map[models.Weekday]models.Schedule, from time.Weekday) *string {
	for i := 1; i <= 7; i++ {
		row, ok := byDay[models.WeekdayOf((from+time.Weekday(i))%7)]
		if !ok || !row.IsWorkingDay {
			continue
		}
		start, err := parseTimeOfDay(row.StartTime)
		if err != nil {
			continue
		}
		s := formatTimeOfDay(start)
		return &s
	}
	return nil
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// parseTimeOfDay accepts "HH:MM" or "HH:MM:SS" and returns seconds since
// midnight.
func parseTimeOfDay(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	limits := []int{23, 59, 59}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		total = total*60 + n
	}
	if len(parts) == 2 {
		total *= 60
	}
	return total, nil
}

func formatTimeOfDay(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/3600, (sec%3600)/60)
}

// NormalizeTimeOfDay validates s and returns it as "HH:MM" (or "HH:MM:SS"
// when seconds are non-zero).
func NormalizeTimeOfDay(s string) (string, error) {
	sec, err := parseTimeOfDay(s)
	if err != nil {
		return "", invalid("%v", err)
	}
	if sec%60 != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60), nil
	}
	return formatTimeOfDay(sec), nil
}
