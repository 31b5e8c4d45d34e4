// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/app/handlers"
	"github.com/coracaovalente/instituto-integration/app/middleware"
	"github.com/coracaovalente/instituto-integration/config"
	_ "github.com/coracaovalente/instituto-integration/docs"
	"github.com/coracaovalente/instituto-integration/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggo/swag"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// HealthCheck reports the readiness of a dependency
type HealthCheck func() error

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app                     *fiber.App
	cfg                     *config.ProductionConfig
	integrationHandler      handlers.IntegrationHandlerInterface
	integrationAdminHandler handlers.IntegrationAdminHandlerInterface
	adminHandler            handlers.AdminHandlerInterface
	authMiddleware          *middleware.AuthMiddleware
	checks                  map[string]HealthCheck
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	integrationHandler handlers.IntegrationHandlerInterface,
	integrationAdminHandler handlers.IntegrationAdminHandlerInterface,
	adminHandler handlers.AdminHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
	checks map[string]HealthCheck,
) *FiberRouter {
	app := fiber.New(fiber.Config{
		AppName:      "Instituto Integration API",
		ServerHeader: "instituto-integration",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:                     app,
		cfg:                     cfg,
		integrationHandler:      integrationHandler,
		integrationAdminHandler: integrationAdminHandler,
		adminHandler:            adminHandler,
		authMiddleware:          authMiddleware,
		checks:                  checks,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	if r.cfg.Deployment.Environment == "development" || r.cfg.Deployment.Environment == "local" {
		api.Get("/swagger.json", r.serveSwaggerJSON)
		log.Println("API documentation enabled for development")
	}

	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: tooManyRequests,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	// Public integration routes
	integration := api.Group("/integration")
	integration.Post("/send", r.integrationHandler.SendUserData)

	// Admin auth routes with stricter rate limiting
	adminAuth := api.Group("/admin/auth")
	adminAuth.Use(limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: tooManyRequests,
	}))
	adminAuth.Post("/login", r.adminHandler.Login)
	adminAuth.Post("/refresh", r.adminHandler.Refresh)
	adminAuth.Post("/logout", r.authMiddleware.AdminAuthenticate(), r.adminHandler.Logout)

	// Operator routes
	admin := api.Group("/admin/integration", r.authMiddleware.AdminAuthenticate())
	admin.Get("/queue/stats", r.integrationAdminHandler.QueueStats)
	admin.Post("/queue", r.integrationAdminHandler.Enqueue)
	admin.Post("/queue/process", r.integrationAdminHandler.ProcessQueue)
	admin.Post("/queue/cleanup", r.integrationAdminHandler.CleanupQueue)
	admin.Delete("/queue/:id", r.integrationAdminHandler.RemoveJob)
	admin.Get("/stats", r.integrationAdminHandler.Stats)
	admin.Get("/logs", r.integrationAdminHandler.ListLogs)
	admin.Get("/logs/export", r.integrationAdminHandler.ExportLogs)
	admin.Get("/rate-limit/:userId", r.integrationAdminHandler.RateLimitStatus)
	admin.Delete("/rate-limit/:userId", r.integrationAdminHandler.ClearRateLimit)
	admin.Post("/config/validate", r.integrationAdminHandler.ValidateConfig)
	admin.Get("/config", r.integrationAdminHandler.GetConfig)
	admin.Put("/config", r.integrationAdminHandler.SaveConfig)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	// Recovery middleware with request context in the panic line
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         r.cfg.Security.XFrameOptions,
		HSTSMaxAge:            r.cfg.Security.HSTSMaxAge,
		ContentSecurityPolicy: r.cfg.Security.CSPPolicy,
		ReferrerPolicy:        r.cfg.Security.ReferrerPolicy,
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
		}))
	}

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","pid":"${pid}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health" || c.Path() == r.cfg.Metrics.Path
		},
	}))

	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics(r.cfg.Metrics.Path, "/api/v1/health"))
	}
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck reports every dependency; any failing check answers 503
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse
// @Router /api/v1/health [get]
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	components := fiber.Map{}
	healthy := true
	for name, check := range r.checks {
		if err := check(); err != nil {
			healthy = false
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	status, code, message := "ok", fiber.StatusOK, "Service is healthy"
	if !healthy {
		status, code, message = "degraded", fiber.StatusServiceUnavailable, "Service is degraded"
	}
	return c.Status(code).JSON(dto.APIResponse{
		Success: healthy,
		Message: message,
		Data: fiber.Map{
			"status":     status,
			"timestamp":  utils.UTCNow().Unix(),
			"version":    r.cfg.Deployment.Version,
			"service":    "instituto-integration",
			"components": components,
		},
	})
}

// serveSwaggerJSON serves the document registered by the docs package
func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Failed to load Swagger documentation",
			Error:   dto.ErrorDetail{Code: "SWAGGER_LOAD_ERROR"},
		})
	}

	c.Set("Content-Type", "application/json")
	return c.SendString(doc)
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func tooManyRequests(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errCode = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
		}
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
