package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"widgethub/events"
	"widgethub/models"

	"gorm.io/gorm"
)

var welcomeMessages = map[string]string{
	"en": "Welcome! How can we help you?",
	"ru": "Добро пожаловать! Как мы можем вам помочь?",
}

// WelcomeMessage picks the greeting for a session language such as "ru" or
// "en-US". Unknown languages get English.
func WelcomeMessage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if msg, ok := welcomeMessages[lang]; ok {
		return msg
	}
	return welcomeMessages["en"]
}

// ChatService reads and appends chat messages.
type ChatService struct {
	db       *gorm.DB
	clock    Clock
	notifier events.Notifier
}

func NewChatService(db *gorm.DB, clock Clock, notifier events.Notifier) *ChatService {
	if clock == nil {
		clock = SystemClock
	}
	if notifier == nil {
		notifier = events.Discard
	}
	return &ChatService{db: db, clock: clock, notifier: notifier}
}

// findSession loads a session. A zero projectID skips the ownership check.
func findSession(tx *gorm.DB, projectID, sessionID uint) (*models.ChatSession, error) {
	if sessionID == 0 {
		return nil, invalid("session_id is required")
	}
	q := tx.Where("id = ?", sessionID)
	if projectID != 0 {
		q = q.Where("project_id = ?", projectID)
	}
	var session models.ChatSession
	err := q.First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("chat session %d not found", sessionID)
	}
	if err != nil {
		return nil, internal("failed to load chat session", err)
	}
	return &session, nil
}

// appendMessage writes a message and bumps the session so recently active
// sessions sort first.
func appendMessage(tx *gorm.DB, session *models.ChatSession, kind models.SenderKind, content string, now time.Time) (*models.ChatMessage, error) {
	msg := models.ChatMessage{
		SessionID: session.ID,
		Kind:      kind,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, internal("failed to create chat message", err)
	}
	if err := tx.Model(session).UpdateColumn("updated_at", now).Error; err != nil {
		return nil, internal("failed to touch chat session", err)
	}
	session.UpdatedAt = now
	return &msg, nil
}

func (s *ChatService) GetSession(ctx context.Context, projectID, sessionID uint) (*models.ChatSession, error) {
	return findSession(s.db.WithContext(ctx), projectID, sessionID)
}

// ListSessions returns a project's sessions, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context, projectID uint, page, limit int) ([]models.ChatSession, int64, error) {
	page, limit = normalizePage(page, limit)
	q := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("project_id = ?", projectID).
		Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, internal("failed to count chat sessions", err)
	}
	var sessions []models.ChatSession
	if err := q.Order("updated_at DESC").Order("id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sessions).Error; err != nil {
		return nil, 0, internal("failed to list chat sessions", err)
	}
	return sessions, total, nil
}

// ListMessages returns a session's messages in creation order. A zero
// projectID skips the ownership check.
func (s *ChatService) ListMessages(ctx context.Context, projectID, sessionID uint) ([]models.ChatMessage, error) {
	db := s.db.WithContext(ctx)
	if _, err := findSession(db, projectID, sessionID); err != nil {
		return nil, err
	}
	var msgs []models.ChatMessage
	if err := db.Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, internal("failed to list chat messages", err)
	}
	return msgs, nil
}

// AppendMessage adds a message to an existing session. Content may be empty
// but not nil.
func (s *ChatService) AppendMessage(ctx context.Context, projectID, sessionID uint, kind models.SenderKind, content *string) (*models.ChatMessage, error) {
	if content == nil {
		return nil, invalid("content is required")
	}
	var (
		msg     *models.ChatMessage
		session *models.ChatSession
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = findSession(tx, projectID, sessionID)
		if err != nil {
			return err
		}
		msg, err = appendMessage(tx, session, kind, *content, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(events.NewIntakeEvent(events.ChatMessage, session.ProjectID, msg.CreatedAt, msg))
	return msg, nil
}

// MarkRead flags every unread message from the given sender kind as read and
// returns how many changed.
func (s *ChatService) MarkRead(ctx context.Context, projectID, sessionID uint, from models.SenderKind) (int64, error) {
	db := s.db.WithContext(ctx)
	if _, err := findSession(db, projectID, sessionID); err != nil {
		return 0, err
	}
	res := db.Model(&models.ChatMessage{}).
		Where("session_id = ? AND message_type = ? AND is_read = ?", sessionID, from, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, internal("failed to mark messages read", res.Error)
	}
	return res.RowsAffected, nil
}

// UnreadCount counts unread visitor messages in a session.
func (s *ChatService) UnreadCount(ctx context.Context, sessionID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("session_id = ? AND message_type = ? AND is_read = ?", sessionID, models.SenderVisitor, false).
		Count(&n).Error
	if err != nil {
		return 0, internal("failed to count unread messages", err)
	}
	return n, nil
}
