package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AdminLoginRequest struct {
	LoginRequest
	Role models.Role `json:"role" validate:"omitempty,oneof=admin marketing viewer"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ProfileRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

type PlanRequest struct {
	Plan models.Plan `json:"plan" validate:"required,oneof=free pro"`
}

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	Role         models.Role  `json:"role"`
	User         *models.User `json:"user"`
}

func newAuthResponse(res *services.AuthResult) AuthResponse {
	return AuthResponse{
		AccessToken:  res.Tokens.Access,
		RefreshToken: res.Tokens.Refresh,
		Role:         res.Role,
		User:         res.User,
	}
}

type AuthController struct {
	Auth   *services.AuthService
	Logger *logrus.Entry
}

func NewAuthController(auth *services.AuthService, logger *logrus.Entry) *AuthController {
	return &AuthController{Auth: auth, Logger: logger}
}

// Register creates a viewer account and signs it in. The very first account
// on a fresh install becomes the superuser.
func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	hasUsers, err := ac.Auth.HasUsers(ctx)
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	user, err := ac.Auth.Register(ctx, services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      models.RoleViewer,
	})
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	if !hasUsers {
		if err := ac.Auth.PromoteToSuperuser(ctx, user); err != nil {
			return respondError(c, ac.Logger, err)
		}
		ac.Logger.WithField("user_id", user.ID).Info("First account promoted to superuser")
	}

	tokens, err := ac.Auth.IssueTokens(ctx, user, clientMeta(c))
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	utils.LogEvent("user_registered", map[string]interface{}{"user_id": user.ID})
	return c.Status(fiber.StatusCreated).JSON(newAuthResponse(&services.AuthResult{
		User: user, Role: user.Role, Tokens: tokens,
	}))
}

func (ac *AuthController) login(c *fiber.Ctx, req LoginRequest, requiredRole *models.Role) error {
	res, err := ac.Auth.Login(c.UserContext(), req.Email, req.Password, requiredRole, clientMeta(c))
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(newAuthResponse(res))
}

// Login signs in any active account.
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return ac.login(c, req, nil)
}

// AdminLogin signs in staff. The account must hold the requested role
// (admin when omitted); superusers may request any role.
func (ac *AuthController) AdminLogin(c *fiber.Ctx) error {
	var req AdminLoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	role := req.Role
	if role == "" {
		role = models.RoleAdmin
	}
	return ac.login(c, req.LoginRequest, &role)
}

// ClientLogin signs in viewer accounts only.
func (ac *AuthController) ClientLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	role := models.RoleViewer
	return ac.login(c, req, &role)
}

func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := ac.Auth.Refresh(c.UserContext(), req.RefreshToken, clientMeta(c))
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(newAuthResponse(res))
}

// Logout revokes the caller's refresh token.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user := currentUser(c)
	if err := ac.Auth.Logout(c.UserContext(), user.ID, req.RefreshToken); err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

func (ac *AuthController) UpdateProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := ac.Auth.UpdateProfile(c.UserContext(), currentUser(c), services.ProfileInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(user)
}

// DeleteProfile deactivates the caller. The account row is kept.
func (ac *AuthController) DeleteProfile(c *fiber.Ctx) error {
	user := currentUser(c)
	if err := ac.Auth.Deactivate(c.UserContext(), user); err != nil {
		return respondError(c, ac.Logger, err)
	}
	utils.LogEvent("user_deactivated", map[string]interface{}{"user_id": user.ID})
	return c.SendStatus(fiber.StatusNoContent)
}

func (ac *AuthController) UpdatePlan(c *fiber.Ctx) error {
	var req PlanRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := ac.Auth.UpdatePlan(c.UserContext(), currentUser(c), req.Plan)
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(user)
}
