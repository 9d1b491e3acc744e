package services

import (
	"context"
	"errors"
	"sort"

	"widgethub/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelDefault describes the channel intake creates when a submission of a
// given kind arrives without a channel id.
type ChannelDefault struct {
	Kind     models.ChannelKind
	Label    string
	Priority int
}

var (
	LeadChannelDefault     = ChannelDefault{Kind: models.ChannelForm, Label: "Feedback form", Priority: 1}
	CallbackChannelDefault = ChannelDefault{Kind: models.ChannelCall, Label: "Call request", Priority: 2}
	ChatChannelDefault     = ChannelDefault{Kind: models.ChannelChat, Label: "Online chat", Priority: 5}
)

// Directory owns projects and their channels.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// GetProject resolves a tenant by id.
func (d *Directory) GetProject(ctx context.Context, projectID uint) (*models.Project, error) {
	return findProject(d.db.WithContext(ctx), projectID)
}

func findProject(tx *gorm.DB, projectID uint) (*models.Project, error) {
	if projectID == 0 {
		return nil, invalid("project id is required")
	}
	var project models.Project
	if err := tx.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("project %d not found", projectID)
		}
		return nil, internal("failed to load project", err)
	}
	return &project, nil
}

// ListChannels returns a project's channels ordered by (priority, id).
func (d *Directory) ListChannels(ctx context.Context, projectID uint, activeOnly bool) ([]models.Channel, error) {
	q := d.db.WithContext(ctx).Where("project_id = ?", projectID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var channels []models.Channel
	if err := q.Order("priority ASC").Order("id ASC").Find(&channels).Error; err != nil {
		return nil, internal("failed to list channels", err)
	}
	return channels, nil
}

// GetChannel fetches a channel and checks it belongs to the project.
func (d *Directory) GetChannel(ctx context.Context, projectID, channelID uint) (*models.Channel, error) {
	return findChannel(d.db.WithContext(ctx), projectID, channelID)
}

func findChannel(tx *gorm.DB, projectID, channelID uint) (*models.Channel, error) {
	var ch models.Channel
	err := tx.Where("id = ? AND project_id = ?", channelID, projectID).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("channel %d not found in project %d", channelID, projectID)
	}
	if err != nil {
		return nil, internal("failed to load channel", err)
	}
	return &ch, nil
}

// GetOrCreateDefault returns a channel of the default's kind for the
// project, creating the default one if the project has none.
func (d *Directory) GetOrCreateDefault(ctx context.Context, projectID uint, def ChannelDefault) (*models.Channel, error) {
	var out *models.Channel
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		ch, err := getOrCreateDefault(tx, projectID, def)
		out = ch
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getOrCreateDefault(tx *gorm.DB, projectID uint, def ChannelDefault) (*models.Channel, error) {
	var existing models.Channel
	err := tx.Where("project_id = ? AND type = ?", projectID, def.Kind).
		Order("is_active DESC").Order("priority ASC").Order("id ASC").
		Take(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, internal("failed to look up channel", err)
	}
	return claimDefaultChannel(tx, projectID, def)
}

// claimDefaultChannel inserts the default channel unless another caller
// already did, then reads back whichever row won.
func claimDefaultChannel(tx *gorm.DB, projectID uint, def ChannelDefault) (*models.Channel, error) {
	kind := string(def.Kind)
	candidate := models.Channel{
		ProjectID:  projectID,
		Type:       def.Kind,
		Label:      def.Label,
		Priority:   def.Priority,
		IsActive:   true,
		DefaultFor: &kind,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "default_for"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, internal("failed to create default channel", err)
	}

	var winner models.Channel
	if err := tx.Where("project_id = ? AND default_for = ?", projectID, kind).Take(&winner).Error; err != nil {
		return nil, internal("failed to read default channel", err)
	}
	return &winner, nil
}

// ChannelInput carries the editable channel fields.
type ChannelInput struct {
	Type         models.ChannelKind
	Label        string
	Link         *string
	PhoneNumber  *string
	OnlinePolicy *string
	ShowInTop    bool
	Priority     int
	IsActive     bool
	Icon         *string
	Description  *string
}

var channelEditableColumns = []string{
	"type", "label", "link", "phone_number", "online_policy",
	"show_in_top", "priority", "is_active", "icon", "description",
}

func (in ChannelInput) apply(ch *models.Channel) {
	ch.Type = in.Type
	ch.Label = in.Label
	ch.Link = in.Link
	ch.PhoneNumber = in.PhoneNumber
	ch.OnlinePolicy = in.OnlinePolicy
	ch.ShowInTop = in.ShowInTop
	ch.Priority = in.Priority
	ch.IsActive = in.IsActive
	ch.Icon = in.Icon
	ch.Description = in.Description
}

func (d *Directory) CreateChannel(ctx context.Context, projectID uint, in ChannelInput) (*models.Channel, error) {
	if !in.Type.Valid() {
		return nil, invalid("unknown channel type %q", in.Type)
	}
	db := d.db.WithContext(ctx)
	if _, err := findProject(db, projectID); err != nil {
		return nil, err
	}
	ch := models.Channel{ProjectID: projectID}
	in.apply(&ch)
	if err := db.Create(&ch).Error; err != nil {
		return nil, internal("failed to create channel", err)
	}
	return &ch, nil
}

func (d *Directory) UpdateChannel(ctx context.Context, projectID, channelID uint, in ChannelInput) (*models.Channel, error) {
	if !in.Type.Valid() {
		return nil, invalid("unknown channel type %q", in.Type)
	}
	db := d.db.WithContext(ctx)
	ch, err := findChannel(db, projectID, channelID)
	if err != nil {
		return nil, err
	}
	in.apply(ch)
	if err := db.Model(ch).Select(channelEditableColumns).Updates(ch).Error; err != nil {
		return nil, internal("failed to update channel", err)
	}
	return ch, nil
}

// DeleteChannel removes a channel. Channels referenced by leads or callbacks
// are kept and deactivated instead.
func (d *Directory) DeleteChannel(ctx context.Context, projectID, channelID uint) (deactivated bool, err error) {
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := findChannel(tx, projectID, channelID)
		if err != nil {
			return err
		}
		var refs int64
		if err := tx.Model(&models.Lead{}).Where("channel_id = ?", ch.ID).Count(&refs).Error; err != nil {
			return internal("failed to count leads", err)
		}
		if refs == 0 {
			if err := tx.Model(&models.CallbackRequest{}).Where("channel_id = ?", ch.ID).Count(&refs).Error; err != nil {
				return internal("failed to count callbacks", err)
			}
		}
		if refs > 0 {
			deactivated = true
			if err := tx.Model(ch).Update("is_active", false).Error; err != nil {
				return internal("failed to deactivate channel", err)
			}
			return nil
		}
		if err := tx.Model(&models.ChatSession{}).Where("channel_id = ?", ch.ID).Update("channel_id", nil).Error; err != nil {
			return internal("failed to detach chat sessions", err)
		}
		if err := tx.Delete(ch).Error; err != nil {
			return internal("failed to delete channel", err)
		}
		return nil
	})
	return deactivated, err
}

// ApplyChannelOrder reorders channels so the ids listed in order come first,
// in that order. Unlisted channels follow in their original order.
func ApplyChannelOrder(channels []models.Channel, order []uint) []models.Channel {
	if len(order) == 0 {
		return channels
	}
	rank := make(map[uint]int, len(order))
	for i, id := range order {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	out := make([]models.Channel, len(channels))
	copy(out, channels)
	sort.SliceStable(out, func(i, j int) bool {
		ri, okI := rank[out[i].ID]
		rj, okJ := rank[out[j].ID]
		switch {
		case okI && okJ:
			return ri < rj
		case okI != okJ:
			return okI
		}
		return false
	})
	return out
}

// TopChannelsFirst moves show_in_top channels ahead of the rest, keeping the
// relative order inside each group. Used for mobile widgets, which only
// render the first few buttons.
func TopChannelsFirst(channels []models.Channel) []models.Channel {
	out := make([]models.Channel, len(channels))
	copy(out, channels)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ShowInTop && !out[j].ShowInTop
	})
	return out
}
