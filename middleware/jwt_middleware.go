package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"widgethub/models"
	"widgethub/services"
)

// Protected authenticates the bearer access token and stores the user in
// c.Locals("user") and its id in c.Locals("userID").
func Protected(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Try to get token from Authorization header first
		var token string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "Invalid authorization format",
				})
			}
			token = tokenParts[1]
		} else {
			// Fall back to cookie if header not present
			token = c.Cookies("access_token")
			if token == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "Authorization required",
				})
			}
		}

		user, err := auth.UserFromAccessToken(c.UserContext(), token)
		if err != nil {
			status := fiber.StatusUnauthorized
			switch services.KindOf(err) {
			case services.KindForbidden:
				status = fiber.StatusForbidden
			case services.KindInternal:
				status = fiber.StatusInternalServerError
			}
			return c.Status(status).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}

		c.Locals("user", user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

// CurrentUser returns the user stored by Protected, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
