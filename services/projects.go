package services

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"

	"widgethub/models"
	"widgethub/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectInput carries editable project fields. A nil WebhookSecret leaves
// the stored secret unchanged; an empty one clears it.
type ProjectInput struct {
	Name          string
	Timezone      string
	WebhookURL    *string
	WebhookSecret *string
}

// ScheduleInput is one weekday row.
type ScheduleInput struct {
	Day          models.Weekday
	StartTime    string
	EndTime      string
	IsWorkingDay bool
}

// ProjectService manages tenants, their members and working hours.
type ProjectService struct {
	db     *gorm.DB
	cipher *utils.SecretCipher
	access *AccessControl
}

func NewProjectService(db *gorm.DB, cipher *utils.SecretCipher, access *AccessControl) *ProjectService {
	return &ProjectService{db: db, cipher: cipher, access: access}
}

func (s *ProjectService) validate(in *ProjectInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if _, err := LoadLocation(in.Timezone); err != nil {
		return err
	}
	if in.WebhookURL != nil && *in.WebhookURL != "" {
		u, err := url.Parse(*in.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("webhook_url must be an absolute http(s) URL")
		}
	}
	return nil
}

func (s *ProjectService) sealSecret(p *models.Project, secret *string) error {
	if secret == nil {
		return nil
	}
	if *secret == "" {
		p.WebhookSecret = nil
		return nil
	}
	if s.cipher == nil {
		return &Error{Kind: KindNotConfigured, Message: "encryption key is not configured"}
	}
	sealed, err := s.cipher.Encrypt(*secret)
	if err != nil {
		return internal("failed to encrypt webhook secret", err)
	}
	p.WebhookSecret = &sealed
	return nil
}

// WebhookSecret returns the decrypted signing secret, or "" when unset.
func (s *ProjectService) WebhookSecret(p *models.Project) (string, error) {
	if p.WebhookSecret == nil || *p.WebhookSecret == "" {
		return "", nil
	}
	if s.cipher == nil {
		return "", &Error{Kind: KindNotConfigured, Message: "encryption key is not configured"}
	}
	plain, err := s.cipher.Decrypt(*p.WebhookSecret)
	if err != nil {
		return "", internal("failed to decrypt webhook secret", err)
	}
	return plain, nil
}

// WebhookTarget returns where and how to deliver a project's events. An
// empty endpoint means the project has no webhook.
func (s *ProjectService) WebhookTarget(ctx context.Context, projectID uint) (endpoint, secret string, err error) {
	project, err := findProject(s.db.WithContext(ctx), projectID)
	if err != nil {
		return "", "", err
	}
	if !project.HasWebhook() {
		return "", "", nil
	}
	secret, err = s.WebhookSecret(project)
	if err != nil {
		return "", "", err
	}
	return *project.WebhookURL, secret, nil
}

// ListProjects returns the projects visible to user.
func (s *ProjectService) ListProjects(ctx context.Context, user *models.User) ([]models.Project, error) {
	ids, all, err := s.access.VisibleProjectIDs(ctx, user)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Order("id ASC")
	if !all {
		if len(ids) == 0 {
			return []models.Project{}, nil
		}
		q = q.Where("id IN ?", ids)
	}
	var projects []models.Project
	if err := q.Find(&projects).Error; err != nil {
		return nil, internal("failed to list projects", err)
	}
	return projects, nil
}

// CreateProject stores a project and makes the creator its first member.
func (s *ProjectService) CreateProject(ctx context.Context, creatorID uint, in ProjectInput) (*models.Project, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	project := models.Project{Name: in.Name, Timezone: in.Timezone, WebhookURL: in.WebhookURL}
	if err := s.sealSecret(&project, in.WebhookSecret); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return internal("failed to create project", err)
		}
		if creatorID == 0 {
			return nil
		}
		return addMember(tx, project.ID, creatorID)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *ProjectService) UpdateProject(ctx context.Context, projectID uint, in ProjectInput) (*models.Project, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	project, err := findProject(db, projectID)
	if err != nil {
		return nil, err
	}
	project.Name = in.Name
	project.Timezone = in.Timezone
	project.WebhookURL = in.WebhookURL
	if err := s.sealSecret(project, in.WebhookSecret); err != nil {
		return nil, err
	}
	if err := db.Model(project).
		Select("name", "timezone", "webhook_url", "webhook_secret").
		Updates(project).Error; err != nil {
		return nil, internal("failed to update project", err)
	}
	return project, nil
}

func addMember(tx *gorm.DB, projectID, userID uint) error {
	m := models.ProjectMember{ProjectID: projectID, UserID: userID}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&m).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal("failed to add project member", err)
	}
	return nil
}

// AddMember grants userID access to the project. Adding twice is a no-op.
func (s *ProjectService) AddMember(ctx context.Context, projectID, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		var user models.User
		if err := tx.Select("id").First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user %d not found", userID)
			}
			return internal("failed to load user", err)
		}
		return addMember(tx, projectID, userID)
	})
}

func (s *ProjectService) RemoveMember(ctx context.Context, projectID, userID uint) error {
	res := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMember{})
	if res.Error != nil {
		return internal("failed to remove project member", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("user %d is not a member of project %d", userID, projectID)
	}
	return nil
}

func (s *ProjectService) ListMembers(ctx context.Context, projectID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN project_members ON project_members.user_id = users.id").
		Where("project_members.project_id = ?", projectID).
		Order("users.id ASC").
		Find(&users).Error
	if err != nil {
		return nil, internal("failed to list project members", err)
	}
	return users, nil
}

// ListSchedules returns the project's rows in weekday order.
func (s *ProjectService) ListSchedules(ctx context.Context, projectID uint) ([]models.Schedule, error) {
	var rows []models.Schedule
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&rows).Error; err != nil {
		return nil, internal("failed to list schedules", err)
	}
	order := map[models.Weekday]int{
		models.Monday: 0, models.Tuesday: 1, models.Wednesday: 2, models.Thursday: 3,
		models.Friday: 4, models.Saturday: 5, models.Sunday: 6,
	}
	sort.Slice(rows, func(i, j int) bool { return order[rows[i].Day] < order[rows[j].Day] })
	return rows, nil
}

// UpsertSchedule writes the row for a weekday, replacing any existing one in
// a single statement.
func (s *ProjectService) UpsertSchedule(ctx context.Context, projectID uint, in ScheduleInput) (*models.Schedule, error) {
	if !in.Day.Valid() {
		return nil, invalid("unknown day %q", in.Day)
	}
	start, err := NormalizeTimeOfDay(in.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := NormalizeTimeOfDay(in.EndTime)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if _, err := findProject(db, projectID); err != nil {
		return nil, err
	}
	row := models.Schedule{
		ProjectID:    projectID,
		Day:          in.Day,
		StartTime:    start,
		EndTime:      end,
		IsWorkingDay: in.IsWorkingDay,
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "is_working_day", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, internal("failed to save schedule", err)
	}
	var saved models.Schedule
	if err := db.Where("project_id = ? AND day = ?", projectID, in.Day).Take(&saved).Error; err != nil {
		return nil, internal("failed to read schedule", err)
	}
	return &saved, nil
}

func (s *ProjectService) DeleteSchedule(ctx context.Context, projectID uint, day models.Weekday) error {
	res := s.db.WithContext(ctx).
		Where("project_id = ? AND day = ?", projectID, day).
		Delete(&models.Schedule{})
	if res.Error != nil {
		return internal("failed to delete schedule", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("no schedule for %s", day)
	}
	return nil
}
