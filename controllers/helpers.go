package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/middleware"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

// statusFor maps a service error kind onto an HTTP status.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindInvalidRequest:
		return fiber.StatusBadRequest
	case services.KindNotConfigured, services.KindConflict:
		return fiber.StatusConflict
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	}
	return fiber.StatusInternalServerError
}

// respondError writes the error envelope for a service failure. Internal
// errors are logged and reported; their details never reach the client.
func respondError(c *fiber.Ctx, logger *logrus.Entry, err error) error {
	kind := services.KindOf(err)
	status := statusFor(kind)
	if status == fiber.StatusInternalServerError {
		utils.LogError("request_failed", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
		return utils.ErrorResponse(c, status, "Internal server error", nil)
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"kind":   kind,
			"path":   c.Path(),
			"status": status,
		}).Debug(err.Error())
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
		"code":    string(kind),
	})
}

// ErrorHandler renders errors returned from handlers, including the
// *fiber.Error values produced by parseID and parseBody, as the standard
// error envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.ErrorResponse(c, fe.Code, fe.Message, nil)
	}
	return respondError(c, nil, err)
}

// parseID reads a positive integer path parameter.
func parseID(c *fiber.Ctx, name string) (uint, error) {
	id := utils.ParseUint(c.Params(name))
	if id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func currentUser(c *fiber.Ctx) *models.User {
	return middleware.CurrentUser(c)
}

// parseBody decodes and validates a JSON body.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := utils.ValidateStruct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Validation failed: "+err.Error())
	}
	return nil
}

func clientMeta(c *fiber.Ctx) services.ClientMeta {
	return services.ClientMeta{UserAgent: c.Get(fiber.HeaderUserAgent), IP: c.IP()}
}
