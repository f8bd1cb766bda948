// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/app/handlers"
	"github.com/skyportal/source-query/app/middleware"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/utils"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app              *fiber.App
	cfg              config.ServerConfig
	metrics          config.MetricsConfig
	version          string
	sourceHandler    handlers.SourceHandlerInterface
	candidateHandler handlers.CandidateHandlerInterface
	authMiddleware   *middleware.AuthMiddleware
	log              *logger.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	sourceHandler handlers.SourceHandlerInterface,
	candidateHandler handlers.CandidateHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
	log *logger.Logger,
) *FiberRouter {
	if log == nil {
		log = logger.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:      "SkyPortal Source Query API",
		ServerHeader: "skyportal-source-query",
		ErrorHandler: errorHandler(log),
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:              app,
		cfg:              cfg.Server,
		metrics:          cfg.Metrics,
		version:          cfg.Deployment.Version,
		sourceHandler:    sourceHandler,
		candidateHandler: candidateHandler,
		authMiddleware:   authMiddleware,
		log:              log,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.metrics.Enabled {
		path := r.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	if r.cfg.GlobalRateLimit > 0 {
		api.Use(limiter.New(limiter.Config{
			Max:        r.cfg.GlobalRateLimit,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
					Success: false,
					Message: "Too many requests. Please try again later.",
					Error: dto.ErrorDetail{
						Code: "RATE_LIMIT_EXCEEDED",
					},
				})
			},
			Next: func(c fiber.Ctx) bool {
				return c.Path() == healthPath
			},
		}))
	}

	auth := r.authMiddleware.Authenticate()

	sources := api.Group("/sources", auth)
	sources.Get("/", r.sourceHandler.ListSources)
	sources.Get("/export", r.sourceHandler.ExportSources)

	api.Get("/candidates", auth, r.candidateHandler.ListCandidates)

	r.app.Use(r.notFoundHandler)

	r.log.Info("Routes configured", "metrics", r.metrics.Enabled)
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(middleware.Metrics())

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	if len(r.cfg.AllowedOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins: r.cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "HEAD", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"Authorization",
				"X-Requested-With",
				"X-Request-ID",
			},
			ExposeHeaders: []string{"X-Request-ID", "Content-Disposition"},
			MaxAge:        utils.CORSMaxAge,
		}))
	}

	if r.cfg.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
		}))
	}

	r.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.log.Error("Panic while serving request",
				"error", e,
				"request_id", requestid.FromContext(c),
				"path", c.Path(),
				"method", c.Method(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.log.Info("Starting server", "address", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.version,
			"service":   "skyportal-source-query",
		},
	})
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

// errorHandler renders errors that escaped the handlers
func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An internal server error occurred"
		errorCode := "INTERNAL_ERROR"

		if e, ok := err.(*fiber.Error); ok && e.Code < fiber.StatusInternalServerError {
			code = e.Code
			message = e.Message
			errorCode = "REQUEST_ERROR"
		} else {
			log.Error("Unhandled request error", "error", err, "path", c.Path())
		}

		return c.Status(code).JSON(dto.APIResponse{
			Success: false,
			Message: message,
			Error: dto.ErrorDetail{
				Code: errorCode,
				Details: fiber.Map{
					"timestamp":  utils.UTCNow().Unix(),
					"request_id": requestid.FromContext(c),
				},
			},
		})
	}
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
