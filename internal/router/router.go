package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/config"
	"github.com/iliyamo/chat-application/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/chat-application/internal/middleware" // import middleware for authentication, rate limiting and caching
	"github.com/iliyamo/chat-application/internal/repository"
	"github.com/iliyamo/chat-application/internal/session"
	"github.com/iliyamo/chat-application/internal/storage"
)

const defaultBodyLimit = "20M"

// Deps carries everything the HTTP layer needs.  Redis and Events may be
// nil; caching, rate limiting and event publishing are then disabled.
type Deps struct {
	Cfg       config.Config
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	DB        *sql.DB
	Redis     *redis.Client
	Sessions  *session.Manager
	Media     *storage.Local
	Events    handler.EventPublisher
	Log       *zap.Logger
}

// New builds the Echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(d.Log))
	bodyLimit := d.Cfg.MaxUploadSize
	if bodyLimit == "" {
		bodyLimit = defaultBodyLimit
	}
	e.Use(echomw.BodyLimit(bodyLimit))

	users := repository.NewUserRepo(d.DB)
	tokens := repository.NewTokenRepo(d.DB)
	groups := repository.NewGroupRepo(d.DB)
	messages := repository.NewMessageRepo(d.DB)
	purger := middleware.NewCachePurger(d.Cache, d.Redis)

	RegisterRoutes(e, d.DB)
	RegisterWeb(e, handler.NewWebHandler(d.Cfg, users, groups, d.Sessions, d.Media, purger, d.Log))

	api := apiMiddleware{
		auth:  middleware.Auth(d.Cfg.JWTSecret, d.Sessions),
		limit: middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log),
		cache: middleware.NewRedisCache(d.Cache, d.Redis),
	}
	messageHandler := handler.NewMessageHandler(users, groups, messages, d.Media, d.Events, d.Log)
	messageHandler.PurgeDeleted = d.Cfg.PurgeDeleted

	RegisterAuth(e, handler.NewAuthHandler(d.Cfg, users, tokens, purger, d.Log), api)
	RegisterChat(e, chatHandlers{
		users:    handler.NewUserHandler(users, d.Media, d.Log),
		groups:   handler.NewGroupHandler(users, groups, d.Media, d.Log),
		messages: messageHandler,
		loc:      d.Cfg.Location(),
	}, api)
	return e
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health(db))
}

// RegisterWeb registers the browser-facing pages and form posts.  These
// authenticate through the session cookie only.
func RegisterWeb(e *echo.Echo, w *handler.WebHandler) {
	e.GET("/", w.Index)
	e.GET("/chat/", w.Chat)
	e.Match([]string{"GET", "POST"}, "/auth/login/", w.LoginForm)
	e.Match([]string{"GET", "POST"}, "/auth/signup/", w.SignupForm)
}
