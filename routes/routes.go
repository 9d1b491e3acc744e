package routes

import (
	controller "widgethub/controllers"
	"widgethub/middleware"
	"widgethub/services"
	"widgethub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// Services bundles what the HTTP layer needs.
type Services struct {
	Auth         *services.AuthService
	Access       *services.AccessControl
	Directory    *services.Directory
	Availability *services.AvailabilityEvaluator
	Intake       *services.Intake
	Chat         *services.ChatService
	Leads        *services.LeadService
	Projects     *services.ProjectService
	ABTests      *services.ABTestService
	Clock        services.Clock
}

// Options tunes the public surface.
type Options struct {
	WidgetRateLimit int
	RateLimitStore  fiber.Storage
	AccessLog       bool
	// CORS applies to the dashboard surface; the widget allows any origin.
	CORS middleware.CORSConfig
}

var logFormat = "[${time}] ${status} - ${latency} ${method} ${path}\n"

func requestLogger(enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return logger.New(logger.Config{Format: logFormat})
}

func SetupWidgetRoutes(app *fiber.App, svc Services, opts Options) {
	widgetController := controller.NewWidgetController(
		svc.Directory, svc.Availability, svc.Intake, svc.Chat, svc.Clock, utils.Logger("widget"))

	widget := app.Group("/api/widget",
		middleware.CORS(middleware.WidgetCORSConfig()),
		requestLogger(opts.AccessLog),
	)
	limited := middleware.WidgetRateLimiter(opts.WidgetRateLimit, opts.RateLimitStore)

	widget.Get("/channels/:project_id", limited, widgetController.GetChannels)
	widget.Post("/create_lead/:project_id", limited, widgetController.CreateLead)
	widget.Post("/create_callback/:project_id", limited, widgetController.CreateCallback)
	widget.Post("/start_chat/:project_id", limited, widgetController.StartChat)
	widget.Post("/send_message/:project_id", limited, widgetController.SendMessage)
	widget.Get("/messages/:project_id", limited, widgetController.GetMessages)

	utils.Logger("routes").Info("Widget routes initialized successfully")
}

func SetupAuthRoutes(app *fiber.App, svc Services, opts Options) {
	authController := controller.NewAuthController(svc.Auth, utils.Logger("auth"))

	// Auth routes group with logging middleware
	auth := app.Group("/auth", middleware.CORS(opts.CORS), requestLogger(opts.AccessLog))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)
	auth.Post("/admin/login", authController.AdminLogin)
	auth.Post("/client/login", authController.ClientLogin)
	auth.Post("/client/register", authController.Register)
	auth.Post("/refresh", authController.RefreshToken)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected(svc.Auth))
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Get("/me", authController.GetCurrentUser)
	protectedAuth.Put("/profile", authController.UpdateProfile)
	protectedAuth.Delete("/profile", authController.DeleteProfile)
	protectedAuth.Put("/plan", authController.UpdatePlan)

	utils.Logger("routes").Info("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, svc Services, opts Options) {
	userController := controller.NewUserController(svc.Auth, utils.Logger("users"))
	projectController := controller.NewProjectController(svc.Projects, svc.Directory, utils.Logger("projects"))
	channelController := controller.NewChannelController(svc.Directory, svc.Availability, svc.Access, svc.Clock, utils.Logger("channels"))
	leadController := controller.NewLeadController(svc.Leads, utils.Logger("leads"))
	chatController := controller.NewChatController(svc.Chat, utils.Logger("chat"))
	abTestController := controller.NewABTestController(svc.ABTests, svc.Directory, svc.Access, utils.Logger("abtests"))

	guard := func(res services.Resource) fiber.Handler {
		return middleware.RequireAccess(svc.Access, res)
	}

	// API group with versioning and protection
	api := app.Group("/api/v1",
		middleware.CORS(opts.CORS),
		middleware.Protected(svc.Auth),
		requestLogger(opts.AccessLog),
	)

	// User management (admin only)
	users := api.Group("/users", guard(services.ResourceUsers))
	users.Get("/", userController.ListUsers)
	users.Post("/", userController.CreateUser)
	users.Get("/:id", userController.GetUser)
	users.Put("/:id", userController.UpdateUser)

	// Projects
	api.Get("/projects", projectController.GetProjects)
	api.Post("/projects", guard(services.ResourceProject), projectController.CreateProject)

	project := api.Group("/projects/:project_id")
	project.Get("/", guard(services.ResourceProject), projectController.GetProject)
	project.Put("/", guard(services.ResourceProject), projectController.UpdateProject)

	members := project.Group("/members", guard(services.ResourceMembers))
	members.Get("/", projectController.GetMembers)
	members.Post("/", projectController.AddMember)
	members.Delete("/:user_id", projectController.RemoveMember)

	schedules := project.Group("/schedules", guard(services.ResourceSchedule))
	schedules.Get("/", projectController.GetSchedules)
	schedules.Put("/:day", projectController.PutSchedule)
	schedules.Delete("/:day", projectController.DeleteSchedule)

	// Channels
	api.Get("/channels/widget-config", channelController.WidgetConfig)
	channels := project.Group("/channels", guard(services.ResourceChannels))
	channels.Get("/", channelController.GetChannels)
	channels.Post("/", channelController.CreateChannel)
	channels.Get("/:id", channelController.GetChannel)
	channels.Put("/:id", channelController.UpdateChannel)
	channels.Delete("/:id", channelController.DeleteChannel)

	// Leads and callbacks
	leads := project.Group("/leads", guard(services.ResourceLeads))
	leads.Get("/", leadController.GetLeads)
	leads.Get("/:id", leadController.GetLead)
	leads.Patch("/:id", leadController.UpdateLead)

	callbacks := project.Group("/callbacks", guard(services.ResourceLeads))
	callbacks.Get("/", leadController.GetCallbacks)
	callbacks.Get("/:id", leadController.GetCallback)
	callbacks.Patch("/:id", leadController.UpdateCallback)

	// Chat
	chat := project.Group("/chat-sessions", guard(services.ResourceChat))
	chat.Get("/", chatController.GetSessions)
	chat.Get("/:id", chatController.GetSession)
	chat.Get("/:id/messages", chatController.GetMessages)
	chat.Post("/:id/messages", chatController.Reply)
	chat.Post("/:id/read", chatController.MarkRead)

	// A/B tests
	abTests := project.Group("/ab-tests", guard(services.ResourceABTests))
	abTests.Get("/", abTestController.GetTests)
	abTests.Post("/", abTestController.CreateTest)
	abTests.Get("/:id", abTestController.GetTest)
	abTests.Put("/:id", abTestController.UpdateTest)
	abTests.Delete("/:id", abTestController.DeleteTest)
	abTests.Post("/:id/variants", abTestController.CreateVariant)
	abTests.Put("/:id/variants/:variant_id", abTestController.UpdateVariant)
	abTests.Delete("/:id/variants/:variant_id", abTestController.DeleteVariant)

	// Assignment acts on the caller, so it lives outside the project tree
	api.Post("/ab-tests/:id/assign", abTestController.Assign)
	api.Get("/ab-tests/:id/assignment", abTestController.GetAssignment)

	utils.Logger("routes").Info("API routes initialized successfully")
}

// SetupRoutes registers every route group plus health and 404 handlers.
func SetupRoutes(app *fiber.App, svc Services, opts Options) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	SetupWidgetRoutes(app, svc, opts)
	SetupAuthRoutes(app, svc, opts)
	SetupAPIRoutes(app, svc, opts)

	app.Use(func(c *fiber.Ctx) error {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Route not found", nil)
	})
}
