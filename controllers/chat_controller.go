package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

type ChatReplyRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type ChatController struct {
	Chat   *services.ChatService
	Logger *logrus.Entry
}

func NewChatController(chat *services.ChatService, logger *logrus.Entry) *ChatController {
	return &ChatController{Chat: chat, Logger: logger}
}

func (cc *ChatController) GetSessions(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	page, limit := utils.Pagination(c)
	sessions, total, err := cc.Chat.ListSessions(c.UserContext(), projectID, page, limit)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  sessions,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

// GetSession returns a session with its unread visitor message count.
func (cc *ChatController) GetSession(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	session, err := cc.Chat.GetSession(ctx, projectID, sessionID)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	unread, err := cc.Chat.UnreadCount(ctx, session.ID)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"session": session,
		"unread":  unread,
	}))
}

func (cc *ChatController) GetMessages(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	msgs, err := cc.Chat.ListMessages(c.UserContext(), projectID, sessionID)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(msgs))
}

// Reply posts a staff message into the session.
func (cc *ChatController) Reply(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ChatReplyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	msg, err := cc.Chat.AppendMessage(c.UserContext(), projectID, sessionID, models.SenderStaff, &req.Content)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(msg))
}

// MarkRead marks every visitor message in the session as read.
func (cc *ChatController) MarkRead(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	n, err := cc.Chat.MarkRead(c.UserContext(), projectID, sessionID, models.SenderVisitor)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"marked": n}))
}
