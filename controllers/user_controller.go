package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

type CreateUserRequest struct {
	Email     string      `json:"email" validate:"required,email"`
	Password  string      `json:"password" validate:"required,min=8"`
	FirstName string      `json:"first_name" validate:"omitempty,max=100"`
	LastName  string      `json:"last_name" validate:"omitempty,max=100"`
	Role      models.Role `json:"role" validate:"omitempty,oneof=admin marketing viewer"`
	Plan      models.Plan `json:"plan" validate:"omitempty,oneof=free pro"`
}

type UpdateUserRequest struct {
	Role     *models.Role `json:"role" validate:"omitempty,oneof=admin marketing viewer"`
	Plan     *models.Plan `json:"plan" validate:"omitempty,oneof=free pro"`
	IsActive *bool        `json:"is_active"`
}

// UserController is the admin-only account management surface.
type UserController struct {
	Auth   *services.AuthService
	Logger *logrus.Entry
}

func NewUserController(auth *services.AuthService, logger *logrus.Entry) *UserController {
	return &UserController{Auth: auth, Logger: logger}
}

func (uc *UserController) ListUsers(c *fiber.Ctx) error {
	page, limit := utils.Pagination(c)
	users, total, err := uc.Auth.ListUsers(c.UserContext(), page, limit)
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(utils.PaginatedResponse{
		Data:  users,
		Total: total,
		Page:  page,
		Limit: limit,
	}))
}

func (uc *UserController) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := uc.Auth.Register(c.UserContext(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Plan:      req.Plan,
	})
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	uc.Logger.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"role":       user.Role,
		"created_by": currentUser(c).ID,
	}).Info("User created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(user))
}

func (uc *UserController) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	user, err := uc.Auth.GetUser(c.UserContext(), id)
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(user))
}

func (uc *UserController) UpdateUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := uc.Auth.AdminUpdateUser(c.UserContext(), id, services.UserAdminInput{
		Role:     req.Role,
		Plan:     req.Plan,
		IsActive: req.IsActive,
	})
	if err != nil {
		return respondError(c, uc.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(user))
}
