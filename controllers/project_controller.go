package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

type ProjectRequest struct {
	Name          string  `json:"name" validate:"required,max=100"`
	Timezone      string  `json:"timezone" validate:"omitempty,max=50"`
	WebhookURL    *string `json:"webhook_url" validate:"omitempty,max=500"`
	WebhookSecret *string `json:"webhook_secret" validate:"omitempty,max=200"`
}

type MemberRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

type ScheduleRequest struct {
	StartTime    string `json:"start_time" validate:"required"`
	EndTime      string `json:"end_time" validate:"required"`
	IsWorkingDay *bool  `json:"is_working_day"`
}

type ProjectController struct {
	Projects  *services.ProjectService
	Directory *services.Directory
	Logger    *logrus.Entry
}

func NewProjectController(projects *services.ProjectService, dir *services.Directory, logger *logrus.Entry) *ProjectController {
	return &ProjectController{Projects: projects, Directory: dir, Logger: logger}
}

func (r ProjectRequest) toInput() services.ProjectInput {
	return services.ProjectInput{
		Name:          r.Name,
		Timezone:      r.Timezone,
		WebhookURL:    r.WebhookURL,
		WebhookSecret: r.WebhookSecret,
	}
}

// GetProjects lists the projects the caller can see.
func (pc *ProjectController) GetProjects(c *fiber.Ctx) error {
	projects, err := pc.Projects.ListProjects(c.UserContext(), currentUser(c))
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(projects))
}

func (pc *ProjectController) CreateProject(c *fiber.Ctx) error {
	var req ProjectRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user := currentUser(c)
	project, err := pc.Projects.CreateProject(c.UserContext(), user.ID, req.toInput())
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	pc.Logger.WithFields(logrus.Fields{
		"project_id": project.ID,
		"user_id":    user.ID,
	}).Info("Project created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(project))
}

func (pc *ProjectController) GetProject(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	project, err := pc.Directory.GetProject(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(project))
}

func (pc *ProjectController) UpdateProject(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req ProjectRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	project, err := pc.Projects.UpdateProject(c.UserContext(), projectID, req.toInput())
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(project))
}

func (pc *ProjectController) GetMembers(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	users, err := pc.Projects.ListMembers(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(users))
}

func (pc *ProjectController) AddMember(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req MemberRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := pc.Projects.AddMember(c.UserContext(), projectID, req.UserID); err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"project_id": projectID,
		"user_id":    req.UserID,
	}))
}

func (pc *ProjectController) RemoveMember(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	userID, err := parseID(c, "user_id")
	if err != nil {
		return err
	}
	if err := pc.Projects.RemoveMember(c.UserContext(), projectID, userID); err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (pc *ProjectController) GetSchedules(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	rows, err := pc.Projects.ListSchedules(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(rows))
}

// PutSchedule replaces the row for the weekday in the path. is_working_day
// defaults to true.
func (pc *ProjectController) PutSchedule(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req ScheduleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	working := true
	if req.IsWorkingDay != nil {
		working = *req.IsWorkingDay
	}
	row, err := pc.Projects.UpsertSchedule(c.UserContext(), projectID, services.ScheduleInput{
		Day:          models.Weekday(c.Params("day")),
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		IsWorkingDay: working,
	})
	if err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(row))
}

func (pc *ProjectController) DeleteSchedule(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	if err := pc.Projects.DeleteSchedule(c.UserContext(), projectID, models.Weekday(c.Params("day"))); err != nil {
		return respondError(c, pc.Logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
