package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

type ChannelRequest struct {
	Type         models.ChannelKind `json:"type" validate:"required,oneof=call callback messenger chat form"`
	Label        string             `json:"label" validate:"required,max=100"`
	Link         *string            `json:"link" validate:"omitempty,max=200"`
	PhoneNumber  *string            `json:"phone_number" validate:"omitempty,max=20"`
	OnlinePolicy *string            `json:"online_policy" validate:"omitempty,max=100"`
	ShowInTop    bool               `json:"show_in_top"`
	Priority     int                `json:"priority"`
	IsActive     *bool              `json:"is_active"`
	Icon         *string            `json:"icon" validate:"omitempty,max=50"`
	Description  *string            `json:"description"`
}

func (r ChannelRequest) toInput() services.ChannelInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return services.ChannelInput{
		Type:         r.Type,
		Label:        r.Label,
		Link:         r.Link,
		PhoneNumber:  r.PhoneNumber,
		OnlinePolicy: r.OnlinePolicy,
		ShowInTop:    r.ShowInTop,
		Priority:     r.Priority,
		IsActive:     active,
		Icon:         r.Icon,
		Description:  r.Description,
	}
}

type ChannelController struct {
	Directory    *services.Directory
	Availability *services.AvailabilityEvaluator
	Access       *services.AccessControl
	Clock        services.Clock
	Logger       *logrus.Entry
}

func NewChannelController(dir *services.Directory, avail *services.AvailabilityEvaluator, access *services.AccessControl, clock services.Clock, logger *logrus.Entry) *ChannelController {
	if clock == nil {
		clock = services.SystemClock
	}
	return &ChannelController{
		Directory:    dir,
		Availability: avail,
		Access:       access,
		Clock:        clock,
		Logger:       logger,
	}
}

// GetChannels lists a project's channels by priority; ?active=true hides
// inactive ones.
func (cc *ChannelController) GetChannels(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	active, err := utils.QueryBool(c, "active")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid active filter")
	}
	channels, err := cc.Directory.ListChannels(c.UserContext(), projectID, active != nil && *active)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(channels))
}

func (cc *ChannelController) GetChannel(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	channelID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ch, err := cc.Directory.GetChannel(c.UserContext(), projectID, channelID)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(ch))
}

func (cc *ChannelController) CreateChannel(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req ChannelRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ch, err := cc.Directory.CreateChannel(c.UserContext(), projectID, req.toInput())
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(ch))
}

func (cc *ChannelController) UpdateChannel(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	channelID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ChannelRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ch, err := cc.Directory.UpdateChannel(c.UserContext(), projectID, channelID, req.toInput())
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(ch))
}

// DeleteChannel deletes the channel, or deactivates it when leads or
// callbacks still point at it.
func (cc *ChannelController) DeleteChannel(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	channelID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	deactivated, err := cc.Directory.DeleteChannel(c.UserContext(), projectID, channelID)
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	if deactivated {
		return c.JSON(utils.SuccessResponse(fiber.Map{
			"id":          channelID,
			"deactivated": true,
		}))
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// WidgetConfig previews what the widget would render for
// ?project=<id>&device=<desktop|mobile>.
func (cc *ChannelController) WidgetConfig(c *fiber.Ctx) error {
	projectID := utils.ParseUint(c.Query("project"))
	if projectID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Project ID is required", nil)
	}
	ctx := c.UserContext()
	if err := cc.Access.Require(ctx, currentUser(c), projectID, services.ResourceChannels, services.ActionRead); err != nil {
		return respondError(c, cc.Logger, err)
	}
	active, err := utils.QueryBool(c, "active")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid active filter")
	}
	resp, err := widgetChannels(c, cc.Directory, cc.Availability, cc.Clock.Now(), projectID, active != nil && *active, c.Query("device", "desktop"))
	if err != nil {
		return respondError(c, cc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(resp))
}
