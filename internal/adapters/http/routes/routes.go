package routes

import (
	"log"
	"time"

	"propdesk/internal/adapters/denylist"
	"propdesk/internal/adapters/http/handlers"
	"propdesk/internal/adapters/http/middleware"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/jonboulle/clockwork"
)

// bodyLimit leaves headroom over the 10 MB document limit for multipart
// framing so oversize files get a field-level message.
const bodyLimit = 12 << 20

// Options carries the collaborators that differ between deployments
type Options struct {
	Denylist  services.TokenDenylist
	Documents services.DocumentStore
	Clock     clockwork.Clock
}

// NewApp creates the fiber app with the global middlewares installed
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "PropDesk Contractor Portal API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
		BodyLimit:    bodyLimit,
		ReadTimeout:  30 * time.Second,
	})

	middleware.Setup(app, cfg)
	return app
}

// Setup configures all routes for the application
func Setup(app *fiber.App, repos *repositories.Registry, cfg *config.Config, opts Options) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Denylist == nil {
		opts.Denylist = denylist.NewMemory(opts.Clock)
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Printf("⚠️ Invalid APP_TIMEZONE, using local time: %v", err)
		loc = time.Local
	}

	// Initialize services
	authService := services.NewAuthService(repos.Accounts, repos.Sessions, opts.Denylist, cfg, opts.Clock)
	linkService := services.NewLinkTokenService(repos.Links, repos.Requests, cfg, opts.Clock)
	scheduleService := services.NewScheduleService(linkService, repos.Requests, loc, opts.Clock)
	invoiceService := services.NewInvoiceService(linkService, repos.Invoices, opts.Documents, cfg.Links.InvoiceUnlockDelay, opts.Clock)
	requestService := services.NewServiceRequestService(repos.Requests, linkService, opts.Clock)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg)
	authHandler := handlers.NewAuthHandler(authService, cfg)
	linkHandler := handlers.NewLinkHandler(scheduleService, invoiceService)
	requestHandler := handlers.NewServiceRequestHandler(requestService, invoiceService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	auth := middleware.AuthMiddleware(authService)

	setupAuthRoutes(apiV1.Group("/auth"), authHandler, auth, cfg)
	setupLinkRoutes(apiV1.Group("/links", middleware.NoCacheHeaders()), linkHandler, cfg)

	// Management routes (manager/admin)
	management := apiV1.Group("", auth, middleware.ManagerOnly())
	setupServiceRequestRoutes(management, requestHandler)
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, auth fiber.Handler, cfg *config.Config) {
	// Public routes
	router.Post("/login", middleware.AuthRateLimiter(cfg), handler.Login)

	// Protected routes
	router.Post("/refresh", auth, handler.Refresh)
	router.Post("/logout", auth, handler.Logout)
	router.Post("/logout-all", auth, handler.LogoutAll)
	router.Get("/me", auth, handler.Me)
}

// setupLinkRoutes configures the token-scoped contractor routes (public)
func setupLinkRoutes(router fiber.Router, handler *handlers.LinkHandler, cfg *config.Config) {
	limit := middleware.LinkRateLimiter(cfg)

	router.Get("/schedule/:token", limit, handler.GetSchedule)
	router.Post("/schedule/:token", limit, handler.SubmitSchedule)

	router.Get("/invoice/:token", limit, handler.GetInvoice)
	router.Post("/invoice/:token", limit, handler.SubmitInvoice)
	router.Get("/invoice/:token/availability", limit, handler.GetAvailability)
	router.Post("/invoice/:token/upload", limit, handler.UploadInvoice)
}

// setupServiceRequestRoutes configures management routes
func setupServiceRequestRoutes(router fiber.Router, handler *handlers.ServiceRequestHandler) {
	router.Get("/service-requests", handler.List)
	router.Post("/service-requests", handler.Create)
	router.Get("/service-requests/:id", handler.Get)
	router.Post("/service-requests/:id/links", handler.IssueLink)
	router.Post("/service-requests/:id/complete", handler.Complete)

	router.Get("/invoices", handler.ListInvoices)
}
