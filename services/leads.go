package services

import (
	"context"
	"errors"

	"widgethub/models"

	"gorm.io/gorm"
)

// LeadFilter narrows dashboard listings.
type LeadFilter struct {
	Processed *bool
	ChannelID *uint
	Page      int
	Limit     int
}

// Page sizes are capped at 100; the default is 20.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func (f LeadFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Processed != nil {
		q = q.Where("processed = ?", *f.Processed)
	}
	if f.ChannelID != nil {
		q = q.Where("channel_id = ?", *f.ChannelID)
	}
	return q
}

// LeadService exposes captured leads and callbacks to staff. Records are
// never deleted; only the processed flag changes.
type LeadService struct {
	db *gorm.DB
}

func NewLeadService(db *gorm.DB) *LeadService {
	return &LeadService{db: db}
}

// listRecords pages through a project's rows of model, newest first.
func listRecords[T any](ctx context.Context, db *gorm.DB, projectID uint, f LeadFilter) ([]T, int64, error) {
	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	var model T
	q := f.apply(db.WithContext(ctx).Model(&model).Where("project_id = ?", projectID)).
		Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, internal("failed to count records", err)
	}
	out := make([]T, 0)
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&out).Error; err != nil {
		return nil, 0, internal("failed to list records", err)
	}
	return out, total, nil
}

func getRecord[T any](ctx context.Context, db *gorm.DB, projectID, id uint, what string) (*T, error) {
	var rec T
	err := db.WithContext(ctx).Where("id = ? AND project_id = ?", id, projectID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("%s %d not found", what, id)
	}
	if err != nil {
		return nil, internal("failed to load "+what, err)
	}
	return &rec, nil
}

func setProcessed[T any](ctx context.Context, db *gorm.DB, projectID, id uint, processed bool, what string) (*T, error) {
	rec, err := getRecord[T](ctx, db, projectID, id, what)
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(rec).Update("processed", processed).Error; err != nil {
		return nil, internal("failed to update "+what, err)
	}
	return getRecord[T](ctx, db, projectID, id, what)
}

func (s *LeadService) ListLeads(ctx context.Context, projectID uint, f LeadFilter) ([]models.Lead, int64, error) {
	return listRecords[models.Lead](ctx, s.db, projectID, f)
}

func (s *LeadService) GetLead(ctx context.Context, projectID, id uint) (*models.Lead, error) {
	return getRecord[models.Lead](ctx, s.db, projectID, id, "lead")
}

func (s *LeadService) SetLeadProcessed(ctx context.Context, projectID, id uint, processed bool) (*models.Lead, error) {
	return setProcessed[models.Lead](ctx, s.db, projectID, id, processed, "lead")
}

func (s *LeadService) ListCallbacks(ctx context.Context, projectID uint, f LeadFilter) ([]models.CallbackRequest, int64, error) {
	return listRecords[models.CallbackRequest](ctx, s.db, projectID, f)
}

func (s *LeadService) GetCallback(ctx context.Context, projectID, id uint) (*models.CallbackRequest, error) {
	return getRecord[models.CallbackRequest](ctx, s.db, projectID, id, "callback request")
}

func (s *LeadService) SetCallbackProcessed(ctx context.Context, projectID, id uint, processed bool) (*models.CallbackRequest, error) {
	return setProcessed[models.CallbackRequest](ctx, s.db, projectID, id, processed, "callback request")
}
