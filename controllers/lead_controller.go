package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/services"
	"widgethub/utils"
)

type ProcessedRequest struct {
	Processed *bool `json:"processed" validate:"required"`
}

// LeadController exposes captured leads and callback requests to staff.
type LeadController struct {
	Leads  *services.LeadService
	Logger *logrus.Entry
}

func NewLeadController(leads *services.LeadService, logger *logrus.Entry) *LeadController {
	return &LeadController{Leads: leads, Logger: logger}
}

// leadFilter reads ?processed=, ?channel_id=, ?page= and ?limit=.
func leadFilter(c *fiber.Ctx) (services.LeadFilter, error) {
	var f services.LeadFilter
	processed, err := utils.QueryBool(c, "processed")
	if err != nil {
		return f, fiber.NewError(fiber.StatusBadRequest, "Invalid processed filter")
	}
	f.Processed = processed
	if raw := c.Query("channel_id"); raw != "" {
		id := utils.ParseUint(raw)
		if id == 0 {
			return f, fiber.NewError(fiber.StatusBadRequest, "Invalid channel_id filter")
		}
		f.ChannelID = &id
	}
	f.Page, f.Limit = utils.Pagination(c)
	return f, nil
}

// GetLeads returns the project's leads, newest first.
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	f, err := leadFilter(c)
	if err != nil {
		return err
	}
	leads, total, err := lc.Leads.ListLeads(c.UserContext(), projectID, f)
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
	}))
}

func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	lead, err := lc.Leads.GetLead(c.UserContext(), projectID, id)
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// UpdateLead toggles the processed flag, the only mutable field.
func (lc *LeadController) UpdateLead(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ProcessedRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	lead, err := lc.Leads.SetLeadProcessed(c.UserContext(), projectID, id, *req.Processed)
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

func (lc *LeadController) GetCallbacks(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	f, err := leadFilter(c)
	if err != nil {
		return err
	}
	callbacks, total, err := lc.Leads.ListCallbacks(c.UserContext(), projectID, f)
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  callbacks,
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
	}))
}

func (lc *LeadController) GetCallback(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cb, err := lc.Leads.GetCallback(c.UserContext(), projectID, id)
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(cb))
}

func (lc *LeadController) UpdateCallback(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ProcessedRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cb, err := lc.Leads.SetCallbackProcessed(c.UserContext(), projectID, id, *req.Processed)
	if err != nil {
		return respondError(c, lc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(cb))
}
