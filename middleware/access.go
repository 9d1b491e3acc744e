package middleware

import (
	"github.com/gofiber/fiber/v2"
	"widgethub/services"
	"widgethub/utils"
)

// actionFor treats safe methods as reads and everything else as writes.
func actionFor(method string) services.Action {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return services.ActionRead
	}
	return services.ActionWrite
}

// RequireAccess guards a project-scoped route group. The project comes from
// the :project_id path parameter; routes without one are checked as
// tenant-less.
func RequireAccess(access *services.AccessControl, res services.Resource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
		}

		var projectID uint
		if raw := c.Params("project_id"); raw != "" {
			projectID = utils.ParseUint(raw)
			if projectID == 0 {
				return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid project ID", nil)
			}
		}

		ok, err := access.CanManage(c.UserContext(), user, projectID, res, actionFor(c.Method()))
		if err != nil {
			utils.LogError("access_check", err, map[string]interface{}{
				"user_id":    user.ID,
				"project_id": projectID,
				"resource":   string(res),
			})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check permissions", nil)
		}
		if !ok {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "You do not have access to this resource", nil)
		}
		return c.Next()
	}
}
