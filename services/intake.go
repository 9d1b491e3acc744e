package services

import (
	"context"
	"strings"
	"time"

	"widgethub/events"
	"widgethub/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultDeviceType = "desktop"
	defaultLanguage   = "en"
)

// LeadSubmission is a widget form post.
type LeadSubmission struct {
	ChannelID   *uint
	Contact     string
	Message     string
	Attribution models.Attribution
}

// CallbackSubmission is a widget call-me-back request.
type CallbackSubmission struct {
	ChannelID     *uint
	Phone         string
	PreferredTime *time.Time
	Message       string
	Attribution   models.Attribution
}

// ChatStart opens a new chat session.
type ChatStart struct {
	ChannelID  *uint
	ClientID   string
	PageURL    *string
	DeviceType string
	Language   string
}

// ChatStarted is the new session together with its welcome message.
type ChatStarted struct {
	Session models.ChatSession `json:"session"`
	Welcome models.ChatMessage `json:"welcome_message"`
}

// ChatReply appends to an existing session.
type ChatReply struct {
	SessionID uint
	Kind      models.SenderKind
	Content   *string
}

// Intake records inbound contacts from the widget. Each submission resolves
// its channel and writes its records in one transaction, then emits an event
// once committed.
type Intake struct {
	db       *gorm.DB
	clock    Clock
	notifier events.Notifier
}

func NewIntake(db *gorm.DB, clock Clock, notifier events.Notifier) *Intake {
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = events.Discard
	}
	return &Intake{db: db, clock: clock, notifier: notifier}
}

func withAttributionDefaults(a models.Attribution) models.Attribution {
	if strings.TrimSpace(a.DeviceType) == "" {
		a.DeviceType = defaultDeviceType
	}
	if strings.TrimSpace(a.Language) == "" {
		a.Language = defaultLanguage
	}
	return a
}

// resolveChannel returns the caller's channel when given, checking it belongs
// to the project, or the project's default channel for the intake kind.
func resolveChannel(tx *gorm.DB, projectID uint, channelID *uint, def ChannelDefault) (*models.Channel, error) {
	if channelID != nil && *channelID != 0 {
		return findChannel(tx, projectID, *channelID)
	}
	return getOrCreateDefault(tx, projectID, def)
}

func (in *Intake) SubmitLead(ctx context.Context, projectID uint, sub LeadSubmission) (*models.Lead, error) {
	var lead models.Lead
	err := in.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		ch, err := resolveChannel(tx, projectID, sub.ChannelID, LeadChannelDefault)
		if err != nil {
			return err
		}
		lead = models.Lead{
			ProjectID:   projectID,
			ChannelID:   ch.ID,
			Contact:     sub.Contact,
			Message:     sub.Message,
			Attribution: withAttributionDefaults(sub.Attribution),
		}
		if err := tx.Create(&lead).Error; err != nil {
			return internal("failed to create lead", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	in.notifier.Notify(events.NewIntakeEvent(events.LeadCreated, projectID, in.clock.Now(), lead))
	return &lead, nil
}

func (in *Intake) SubmitCallback(ctx context.Context, projectID uint, sub CallbackSubmission) (*models.CallbackRequest, error) {
	var cb models.CallbackRequest
	err := in.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		ch, err := resolveChannel(tx, projectID, sub.ChannelID, CallbackChannelDefault)
		if err != nil {
			return err
		}
		cb = models.CallbackRequest{
			ProjectID:     projectID,
			ChannelID:     ch.ID,
			Phone:         sub.Phone,
			PreferredTime: sub.PreferredTime,
			Message:       sub.Message,
			Attribution:   withAttributionDefaults(sub.Attribution),
		}
		if err := tx.Create(&cb).Error; err != nil {
			return internal("failed to create callback request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	in.notifier.Notify(events.NewIntakeEvent(events.CallbackCreated, projectID, in.clock.Now(), cb))
	return &cb, nil
}

// StartChat opens a session and greets the visitor with a system message.
// A missing client id is replaced with a generated one.
func (in *Intake) StartChat(ctx context.Context, projectID uint, start ChatStart) (*ChatStarted, error) {
	var out ChatStarted
	now := in.clock.Now()
	err := in.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		ch, err := resolveChannel(tx, projectID, start.ChannelID, ChatChannelDefault)
		if err != nil {
			return err
		}

		clientID := strings.TrimSpace(start.ClientID)
		if clientID == "" {
			clientID = uuid.NewString()
		}
		attr := withAttributionDefaults(models.Attribution{DeviceType: start.DeviceType, Language: start.Language})
		out.Session = models.ChatSession{
			ProjectID:  projectID,
			ChannelID:  &ch.ID,
			ClientID:   clientID,
			PageURL:    start.PageURL,
			DeviceType: attr.DeviceType,
			Language:   attr.Language,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(&out.Session).Error; err != nil {
			return internal("failed to create chat session", err)
		}

		welcome, err := appendMessage(tx, &out.Session, models.SenderSystem, WelcomeMessage(attr.Language), now)
		if err != nil {
			return err
		}
		out.Welcome = *welcome
		return nil
	})
	if err != nil {
		return nil, err
	}
	in.notifier.Notify(events.NewIntakeEvent(events.ChatStarted, projectID, now, out))
	return &out, nil
}

// SendChatMessage appends a message to a session of the project. An empty
// kind means visitor.
func (in *Intake) SendChatMessage(ctx context.Context, projectID uint, reply ChatReply) (*models.ChatMessage, error) {
	if reply.SessionID == 0 {
		return nil, invalid("session_id is required")
	}
	if reply.Content == nil {
		return nil, invalid("content is required")
	}
	kind := reply.Kind
	if kind == "" {
		kind = models.SenderVisitor
	}
	var msg *models.ChatMessage
	err := in.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session, err := findSession(tx, projectID, reply.SessionID)
		if err != nil {
			return err
		}
		msg, err = appendMessage(tx, session, kind, *reply.Content, in.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	in.notifier.Notify(events.NewIntakeEvent(events.ChatMessage, projectID, msg.CreatedAt, msg))
	return msg, nil
}
