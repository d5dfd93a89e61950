package api

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/illegalcall/swift-letter/internal/apperror"
	"github.com/illegalcall/swift-letter/internal/auth"
	"github.com/illegalcall/swift-letter/internal/config"
	"github.com/illegalcall/swift-letter/internal/events"
	"github.com/illegalcall/swift-letter/internal/functions"
	"github.com/illegalcall/swift-letter/internal/metrics"
	"github.com/illegalcall/swift-letter/internal/ratelimit"
	"github.com/illegalcall/swift-letter/internal/repository"
	"github.com/illegalcall/swift-letter/internal/storage"
)

// Deps are the collaborators behind the routes. Nil Store, Storage,
// Functions or Sessions make the routes that need them answer 503, as does a
// nil Verifier when no JWT secret is configured.
type Deps struct {
	Store     *repository.Store
	Storage   storage.Storage
	Functions functions.Invoker
	Verifier  auth.Verifier
	Sessions  auth.SessionProvider
	Events    events.Publisher
	Metrics   *metrics.Metrics

	WaitlistLimiter ratelimit.Limiter
	FeedbackLimiter ratelimit.Limiter

	// FilesDir, when set, is served under /files for local disk storage.
	FilesDir string

	Logger *slog.Logger
}

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	store     *repository.Store
	storage   storage.Storage
	functions functions.Invoker
	guard     *auth.Guard
	sessions  auth.SessionProvider
	events    events.Publisher
	metrics   *metrics.Metrics
	waitlist  ratelimit.Limiter
	feedback  ratelimit.Limiter
	filesDir  string
	logger    *slog.Logger
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		storage:   deps.Storage,
		functions: deps.Functions,
		guard:     auth.NewGuard(cfg.Supabase.JWTSecret, deps.Verifier, cfg.Supabase.SessionCookie),
		sessions:  deps.Sessions,
		events:    deps.Events,
		metrics:   deps.Metrics,
		waitlist:  deps.WaitlistLimiter,
		feedback:  deps.FeedbackLimiter,
		filesDir:  deps.FilesDir,
		logger:    deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.waitlist == nil {
		s.waitlist = ratelimit.NewMemoryLimiter(cfg.Limits.WaitlistMax, cfg.Limits.WaitlistWindow)
	}
	if s.feedback == nil {
		s.feedback = ratelimit.NewMemoryLimiter(cfg.Limits.FeedbackMax, cfg.Limits.FeedbackWindow)
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "swift-letter",
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: s.errorHandler,
		// c.IP() honours X-Forwarded-For only from TrustedProxies
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Server.TrustedProxies,
		EnableIPValidation:      true,
	})

	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + auth.HeaderExtensionToken,
		AllowCredentials: cfg.Server.AllowedOrigins != "*",
	}))
	s.app.Use(s.metrics.Middleware())
	s.app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.MaxRequests,
		Expiration: cfg.Server.RequestTimeout,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		KeyGenerator: clientIP,
		LimitReached: func(c *fiber.Ctx) error {
			return s.tooManyRequests(c, "global", cfg.Server.RequestTimeout)
		},
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	if s.filesDir != "" {
		s.app.Static("/files", s.filesDir, fiber.Static{Browse: false})
	}

	api := s.app.Group("/api")

	cached := cache.New(cache.Config{
		Expiration:   s.cfg.Server.CacheExpiration,
		CacheControl: true,
	})

	// Public routes
	api.Get("/config", cached, s.handleConfig)
	api.Get("/stats", cached, s.handleStats)
	api.Get("/download-extension", s.handleDownloadExtension)
	api.Post("/contact", s.handleContact)
	api.Post("/waitlist", s.rateLimit("waitlist", s.waitlist), s.handleWaitlist)
	api.Post("/feedback", s.rateLimit("feedback", s.feedback), s.optionalSession(), s.handleFeedback)
	api.Post("/download-pdf", s.handleDownloadPDF)

	letter := api.Group("/letter")
	letter.Post("/preview", s.handleLetterPreview)
	letter.Post("/render", s.handleLetterRender)
	letter.Post("/splice", s.handleLetterSplice)

	authGroup := api.Group("/auth")
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/callback", s.handleCallback)
	authGroup.Get("/extension-token", s.requireSession(), s.handleExtensionToken)
	authGroup.Post("/logout", s.requireSession(), s.handleLogout)

	// Session routes (cookie or bearer)
	api.Get("/profile", s.requireSession(), s.handleGetProfile)
	api.Post("/profile", s.requireSession(), s.handleCreateProfile)
	api.Put("/profile", s.requireSession(), s.handleUpsertProfile)
	api.Post("/upload-resume", s.requireSession(), s.handleUploadResume)
	api.Post("/extract-pdf", s.requireSession(), s.handleExtractPDF)

	// Bearer routes
	api.Post("/generate-cover-letter", s.requireBearer(), s.handleGenerateCoverLetter)
	api.Post("/generate-pdf", s.requireBearer(), s.handleGeneratePDF)
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) requireSession() fiber.Handler {
	if s.guard == nil {
		return s.unavailable("Authentication is not configured")
	}
	return s.guard.RequireSession()
}

func (s *Server) requireBearer() fiber.Handler {
	if s.guard == nil {
		return s.unavailable("Authentication is not configured")
	}
	return s.guard.RequireBearer()
}

func (s *Server) optionalSession() fiber.Handler {
	if s.guard == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return s.guard.OptionalSession()
}

func (s *Server) unavailable(msg string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return apperror.Unavailable(msg)
	}
}

// errorHandler renders every error as {"error": "..."}. Outside production
// the underlying cause is added as "details".
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	appErr := apperror.From(err)
	status := appErr.Status()
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}

	body := fiber.Map{"error": appErr.Message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	if !s.cfg.IsProduction() && appErr.Err != nil && appErr.Kind != apperror.KindValidation {
		body["details"] = appErr.Err.Error()
	}
	return c.Status(status).JSON(body)
}

// rateLimit applies a per-IP fixed window. Limiter failures let the request
// through.
func (s *Server) rateLimit(name string, l ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := l.Allow(c.UserContext(), clientIP(c))
		if err != nil {
			s.logger.Warn("Rate limiter unavailable", "limiter", name, "error", err)
			return c.Next()
		}
		if !res.Allowed {
			return s.tooManyRequests(c, name, res.RetryAfter(time.Now()))
		}
		return c.Next()
	}
}

func (s *Server) tooManyRequests(c *fiber.Ctx, name string, retryAfter time.Duration) error {
	s.metrics.RateLimited.WithLabelValues(name).Inc()
	secs := int(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":      "Too many requests. Please try again later.",
		"retryAfter": secs,
	})
}

// clientIP copies c.IP(), which may point into the reused request buffer,
// so it can be kept as a limiter key.
func clientIP(c *fiber.Ctx) string {
	return utils.CopyString(c.IP())
}
