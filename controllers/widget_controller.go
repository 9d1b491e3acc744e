package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

// WidgetController serves the anonymous endpoints the embeddable widget
// calls from customer sites.
type WidgetController struct {
	Directory    *services.Directory
	Availability *services.AvailabilityEvaluator
	Intake       *services.Intake
	Chat         *services.ChatService
	Clock        services.Clock
	Logger       *logrus.Entry
}

func NewWidgetController(dir *services.Directory, avail *services.AvailabilityEvaluator, intake *services.Intake, chat *services.ChatService, clock services.Clock, logger *logrus.Entry) *WidgetController {
	if clock == nil {
		clock = services.SystemClock
	}
	return &WidgetController{
		Directory:    dir,
		Availability: avail,
		Intake:       intake,
		Chat:         chat,
		Clock:        clock,
		Logger:       logger,
	}
}

// widgetChannel is the public subset of a channel.
type widgetChannel struct {
	ID          uint               `json:"id"`
	Type        models.ChannelKind `json:"type"`
	Label       string             `json:"label"`
	Link        *string            `json:"link"`
	PhoneNumber *string            `json:"phone_number"`
	Priority    int                `json:"priority"`
	ShowInTop   bool               `json:"show_in_top"`
	Icon        *string            `json:"icon"`
	Description *string            `json:"description"`
}

type widgetChannelsResponse struct {
	Channels      []widgetChannel `json:"channels"`
	IsOnline      bool            `json:"is_online"`
	NextAvailable *string         `json:"next_available"`
}

func toWidgetChannels(channels []models.Channel) []widgetChannel {
	out := make([]widgetChannel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, widgetChannel{
			ID:          ch.ID,
			Type:        ch.Type,
			Label:       ch.Label,
			Link:        ch.Link,
			PhoneNumber: ch.PhoneNumber,
			Priority:    ch.Priority,
			ShowInTop:   ch.ShowInTop,
			Icon:        ch.Icon,
			Description: ch.Description,
		})
	}
	return out
}

// widgetChannels builds the channel listing shared by the widget and the
// dashboard preview. Mobile devices get show_in_top channels first.
func widgetChannels(c *fiber.Ctx, dir *services.Directory, avail *services.AvailabilityEvaluator, now time.Time, projectID uint, activeOnly bool, device string) (*widgetChannelsResponse, error) {
	ctx := c.UserContext()
	if _, err := dir.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	channels, err := dir.ListChannels(ctx, projectID, activeOnly)
	if err != nil {
		return nil, err
	}
	if device == "mobile" {
		channels = services.TopChannelsFirst(channels)
	}
	status, err := avail.ComputeAvailability(ctx, projectID, now)
	if err != nil {
		return nil, err
	}
	return &widgetChannelsResponse{
		Channels:      toWidgetChannels(channels),
		IsOnline:      status.IsOnline,
		NextAvailable: status.NextAvailable,
	}, nil
}

// GetChannels lists the project's active channels with its online status.
func (wc *WidgetController) GetChannels(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	resp, err := widgetChannels(c, wc.Directory, wc.Availability, wc.Clock.Now(), projectID, true, c.Query("device", "desktop"))
	if err != nil {
		return respondError(c, wc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(resp))
}

type attributionRequest struct {
	UTMSource   *string `json:"utm_source" validate:"omitempty,max=100"`
	UTMMedium   *string `json:"utm_medium" validate:"omitempty,max=100"`
	UTMCampaign *string `json:"utm_campaign" validate:"omitempty,max=100"`
	PageURL     *string `json:"page_url" validate:"omitempty,max=500"`
	ClientID    *string `json:"client_id" validate:"omitempty,max=100"`
	DeviceType  string  `json:"device_type" validate:"omitempty,max=20"`
	Language    string  `json:"language" validate:"omitempty,max=10"`
}

func (r attributionRequest) toModel() models.Attribution {
	return models.Attribution{
		UTMSource:   r.UTMSource,
		UTMMedium:   r.UTMMedium,
		UTMCampaign: r.UTMCampaign,
		PageURL:     r.PageURL,
		ClientID:    r.ClientID,
		DeviceType:  r.DeviceType,
		Language:    r.Language,
	}
}

type widgetLeadRequest struct {
	Channel *uint  `json:"channel"`
	Contact string `json:"contact" validate:"max=100"`
	Message string `json:"message" validate:"max=5000"`
	attributionRequest
}

// CreateLead records a form submission.
func (wc *WidgetController) CreateLead(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req widgetLeadRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	lead, err := wc.Intake.SubmitLead(c.UserContext(), projectID, services.LeadSubmission{
		ChannelID:   req.Channel,
		Contact:     req.Contact,
		Message:     req.Message,
		Attribution: req.toModel(),
	})
	if err != nil {
		return respondError(c, wc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

type widgetCallbackRequest struct {
	Channel       *uint      `json:"channel"`
	Phone         string     `json:"phone" validate:"max=20"`
	Contact       string     `json:"contact" validate:"max=20"`
	PreferredTime *time.Time `json:"preferred_time"`
	Message       string     `json:"message" validate:"max=5000"`
	attributionRequest
}

// CreateCallback records a call-me-back request. Older widget builds send
// the number as "contact".
func (wc *WidgetController) CreateCallback(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req widgetCallbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	phone := req.Phone
	if phone == "" {
		phone = req.Contact
	}

	cb, err := wc.Intake.SubmitCallback(c.UserContext(), projectID, services.CallbackSubmission{
		ChannelID:     req.Channel,
		Phone:         phone,
		PreferredTime: req.PreferredTime,
		Message:       req.Message,
		Attribution:   req.toModel(),
	})
	if err != nil {
		return respondError(c, wc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(cb))
}

type widgetStartChatRequest struct {
	Channel    *uint   `json:"channel"`
	ClientID   string  `json:"client_id" validate:"max=100"`
	PageURL    *string `json:"page_url" validate:"omitempty,max=500"`
	DeviceType string  `json:"device_type" validate:"omitempty,max=20"`
	Language   string  `json:"language" validate:"omitempty,max=10"`
}

// StartChat opens a chat session.
func (wc *WidgetController) StartChat(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req widgetStartChatRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	started, err := wc.Intake.StartChat(c.UserContext(), projectID, services.ChatStart{
		ChannelID:  req.Channel,
		ClientID:   req.ClientID,
		PageURL:    req.PageURL,
		DeviceType: req.DeviceType,
		Language:   req.Language,
	})
	if err != nil {
		return respondError(c, wc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(started))
}

type widgetMessageRequest struct {
	SessionID   uint    `json:"session_id"`
	Content     *string `json:"content" validate:"omitempty,max=5000"`
	MessageType string  `json:"message_type"`
}

// SendMessage appends a visitor message. Staff and system messages cannot
// be posted from the widget.
func (wc *WidgetController) SendMessage(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req widgetMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.SessionID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Session ID is required", nil)
	}
	kind, ok := models.ParseSenderKind(req.MessageType)
	if !ok || kind != models.SenderVisitor {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Widget may only send visitor messages", nil)
	}

	msg, err := wc.Intake.SendChatMessage(c.UserContext(), projectID, services.ChatReply{
		SessionID: req.SessionID,
		Kind:      kind,
		Content:   req.Content,
	})
	if err != nil {
		return respondError(c, wc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(msg))
}

// GetMessages polls a session's messages in creation order.
func (wc *WidgetController) GetMessages(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	sessionID := utils.ParseUint(c.Query("session_id"))
	if sessionID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Session ID is required", nil)
	}

	msgs, err := wc.Chat.ListMessages(c.UserContext(), projectID, sessionID)
	if err != nil {
		return respondError(c, wc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(msgs))
}
