package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/threaddit/backend/internal/auth"
	"github.com/emilythestrangee/threaddit/backend/internal/config"
	"github.com/emilythestrangee/threaddit/backend/internal/handlers"
	"github.com/emilythestrangee/threaddit/backend/internal/middleware"
	"github.com/emilythestrangee/threaddit/backend/internal/observability"
	"github.com/emilythestrangee/threaddit/backend/internal/repository"
)

// HealthChecker reports database health; database.Service satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

// Pinger reports whether an optional dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Config *config.Config
	DB     HealthChecker
	Users  repository.UserRepository
	Posts  repository.PostRepository
	// Cache is nil when redis is not configured.
	Cache  Pinger
	Logger *slog.Logger
}

type Server struct {
	cfg     *config.Config
	db      HealthChecker
	cache   Pinger
	handler *handlers.Handler
	tokens  *auth.TokenManager
	metrics *observability.Metrics
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

func New(opts Options) *Server {
	tokens := auth.NewTokenManager(opts.Config.JWTSecret, opts.Config.JWTTTL)
	metrics := observability.NewMetrics()

	var limiter *middleware.RateLimiter
	if opts.Config.AuthRateLimit > 0 {
		limiter = middleware.NewRateLimiter(opts.Config.AuthRateLimit)
	}

	return &Server{
		cfg:   opts.Config,
		db:    opts.DB,
		cache: opts.Cache,
		handler: handlers.NewHandler(handlers.Deps{
			Users:   opts.Users,
			Posts:   opts.Posts,
			Tokens:  tokens,
			Metrics: metrics,
			Logger:  opts.Logger,
		}),
		tokens:  tokens,
		metrics: metrics,
		limiter: limiter,
		logger:  opts.Logger,
	}
}

// HTTPServer wraps the router in an http.Server listening on the configured port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + s.cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	// ClientIP only honours X-Forwarded-For from configured proxies.
	if err := r.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		s.logger.Error("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(
		middleware.RequestID(),
		middleware.Logger(s.logger),
		middleware.Metrics(s.metrics),
		gin.CustomRecovery(s.recover),
	)

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{s.cfg.ClientURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Threaddit API running")
	})
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", middleware.RateLimit(s.limiter), s.handler.Auth.Register)
			authRoutes.POST("/login", middleware.RateLimit(s.limiter), s.handler.Auth.Login)
			authRoutes.GET("/me", middleware.AuthMiddleware(s.tokens), s.handler.Auth.GetMe)
		}

		posts := api.Group("/posts")
		{
			// Public reads
			posts.GET("", s.handler.Post.GetPosts)
			posts.GET("/:id", s.handler.Post.GetPost)

			protected := posts.Group("")
			protected.Use(middleware.AuthMiddleware(s.tokens))
			{
				protected.POST("", s.handler.Post.CreatePost)
				protected.POST("/:id/upvote", s.handler.Post.Upvote)
				protected.POST("/:id/downvote", s.handler.Post.Downvote)
				protected.POST("/:id/comments", s.handler.Comment.AddComment)
			}
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}

	db := s.db.Health(c.Request.Context())
	body["database"] = db
	if db["status"] != "up" {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	if s.cache != nil {
		if err := s.cache.Ping(c.Request.Context()); err != nil {
			body["cache"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			body["cache"] = gin.H{"status": "up"}
		}
	}

	c.JSON(status, body)
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.logger.ErrorContext(c.Request.Context(), "panic recovered",
		"panic", recovered,
		"path", c.Request.URL.Path,
		"request_id", middleware.GetRequestID(c),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
}
