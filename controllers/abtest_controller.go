package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"widgethub/models"
	"widgethub/services"
	"widgethub/utils"
)

type ABTestRequest struct {
	Name              string `json:"name" validate:"required,max=100"`
	TrafficPercentage *int   `json:"traffic_percentage" validate:"omitempty,min=0,max=100"`
}

type VariantRequest struct {
	Name         string                 `json:"name" validate:"required,max=100"`
	ChannelOrder []uint                 `json:"channel_order"`
	CopyText     map[string]interface{} `json:"copy_text"`
	IsControl    bool                   `json:"is_control"`
	Weight       *int                   `json:"weight" validate:"omitempty,min=0"`
}

func (r ABTestRequest) toInput() services.ABTestInput {
	traffic := 50
	if r.TrafficPercentage != nil {
		traffic = *r.TrafficPercentage
	}
	return services.ABTestInput{Name: r.Name, TrafficPercentage: traffic}
}

func (r VariantRequest) toInput() services.VariantInput {
	weight := 50
	if r.Weight != nil {
		weight = *r.Weight
	}
	return services.VariantInput{
		Name:         r.Name,
		ChannelOrder: r.ChannelOrder,
		CopyText:     r.CopyText,
		IsControl:    r.IsControl,
		Weight:       weight,
	}
}

// AssignmentResponse is a caller's variant together with the project's
// channels in the order that variant prescribes. Variant is null when the
// user is outside the test.
type AssignmentResponse struct {
	TestID   uint                  `json:"test_id"`
	UserID   uint                  `json:"user_id"`
	Excluded bool                  `json:"excluded"`
	Variant  *models.ABTestVariant `json:"variant"`
	Channels []models.Channel      `json:"channels,omitempty"`
}

type ABTestController struct {
	Tests     *services.ABTestService
	Directory *services.Directory
	Access    *services.AccessControl
	Logger    *logrus.Entry
}

func NewABTestController(tests *services.ABTestService, dir *services.Directory, access *services.AccessControl, logger *logrus.Entry) *ABTestController {
	return &ABTestController{Tests: tests, Directory: dir, Access: access, Logger: logger}
}

func (ac *ABTestController) GetTests(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	tests, err := ac.Tests.ListTests(c.UserContext(), projectID)
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(tests))
}

func (ac *ABTestController) GetTest(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	testID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	test, err := ac.Tests.GetTest(c.UserContext(), projectID, testID)
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(test))
}

func (ac *ABTestController) CreateTest(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	var req ABTestRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	test, err := ac.Tests.CreateTest(c.UserContext(), projectID, req.toInput())
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(test))
}

func (ac *ABTestController) UpdateTest(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	testID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req ABTestRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	test, err := ac.Tests.UpdateTest(c.UserContext(), projectID, testID, req.toInput())
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(test))
}

func (ac *ABTestController) DeleteTest(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	testID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.Tests.DeleteTest(c.UserContext(), projectID, testID); err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (ac *ABTestController) CreateVariant(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	testID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req VariantRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	v, err := ac.Tests.CreateVariant(c.UserContext(), projectID, testID, req.toInput())
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(v))
}

func (ac *ABTestController) UpdateVariant(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	testID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	variantID, err := parseID(c, "variant_id")
	if err != nil {
		return err
	}
	var req VariantRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	v, err := ac.Tests.UpdateVariant(c.UserContext(), projectID, testID, variantID, req.toInput())
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.JSON(utils.SuccessResponse(v))
}

func (ac *ABTestController) DeleteVariant(c *fiber.Ctx) error {
	projectID, err := parseID(c, "project_id")
	if err != nil {
		return err
	}
	testID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	variantID, err := parseID(c, "variant_id")
	if err != nil {
		return err
	}
	if err := ac.Tests.DeleteVariant(c.UserContext(), projectID, testID, variantID); err != nil {
		return respondError(c, ac.Logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// subject resolves the test and the user an assignment call acts for. The
// caller acts for itself unless an admin passes ?user_id=.
func (ac *ABTestController) subject(c *fiber.Ctx) (*models.ABTest, uint, error) {
	testID, err := parseID(c, "id")
	if err != nil {
		return nil, 0, err
	}
	ctx := c.UserContext()
	user := currentUser(c)

	test, err := ac.Tests.GetTest(ctx, 0, testID)
	if err != nil {
		return nil, 0, err
	}
	if err := ac.Access.Require(ctx, user, test.ProjectID, services.ResourceABTests, services.ActionRead); err != nil {
		return nil, 0, err
	}

	userID := user.ID
	if raw := c.Query("user_id"); raw != "" {
		userID = utils.ParseUint(raw)
		if userID == 0 {
			return nil, 0, fiber.NewError(fiber.StatusBadRequest, "Invalid user_id")
		}
		if userID != user.ID {
			if err := ac.Access.Require(ctx, user, 0, services.ResourceUsers, services.ActionWrite); err != nil {
				return nil, 0, err
			}
		}
	}
	return test, userID, nil
}

func (ac *ABTestController) assignmentResponse(c *fiber.Ctx, test *models.ABTest, userID uint, v *models.ABTestVariant, excluded bool) error {
	resp := AssignmentResponse{TestID: test.ID, UserID: userID, Excluded: excluded, Variant: v}
	if v != nil {
		channels, err := ac.Directory.ListChannels(c.UserContext(), test.ProjectID, true)
		if err != nil {
			return respondError(c, ac.Logger, err)
		}
		resp.Channels = services.ApplyChannelOrder(channels, v.ChannelOrder)
	}
	return c.JSON(utils.SuccessResponse(resp))
}

// Assign returns the caller's sticky variant, drawing one on first use.
func (ac *ABTestController) Assign(c *fiber.Ctx) error {
	test, userID, err := ac.subject(c)
	if err != nil {
		return err
	}
	v, err := ac.Tests.AssignVariant(c.UserContext(), userID, test.ID)
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	ac.Logger.WithFields(logrus.Fields{
		"test_id":  test.ID,
		"user_id":  userID,
		"excluded": v == nil,
	}).Debug("Variant assigned")
	return ac.assignmentResponse(c, test, userID, v, v == nil)
}

// GetAssignment reads the stored variant without drawing one.
func (ac *ABTestController) GetAssignment(c *fiber.Ctx) error {
	test, userID, err := ac.subject(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	v, err := ac.Tests.GetAssignment(ctx, userID, test.ID)
	if err != nil {
		return respondError(c, ac.Logger, err)
	}
	excluded := false
	if v == nil {
		if excluded, err = ac.Tests.IsExcluded(ctx, userID, test.ID); err != nil {
			return respondError(c, ac.Logger, err)
		}
	}
	return ac.assignmentResponse(c, test, userID, v, excluded)
}
