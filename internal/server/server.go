package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/config"
	"github.com/shinyyama/safedeal/internal/custody"
	"github.com/shinyyama/safedeal/internal/handler"
	appmw "github.com/shinyyama/safedeal/internal/middleware"
	"github.com/shinyyama/safedeal/internal/realtime"
	"github.com/shinyyama/safedeal/internal/repository"
	"github.com/shinyyama/safedeal/internal/reqctx"
	"github.com/shinyyama/safedeal/internal/service"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Deps are the collaborators built by the caller. DB may be nil and injected
// later with SetDB.
type Deps struct {
	DB        *gorm.DB
	Verifier  appmw.TokenVerifier
	Redis     *redis.Client
	Logger    zerolog.Logger
	GitSHA    string
	BuildTime string
	Now       func() time.Time
}

type dbSetter interface {
	SetDB(db *gorm.DB)
}

type Server struct {
	e       *echo.Echo
	repos   []dbSetter
	hub     *realtime.Hub
	broker  *realtime.RedisBroker
	sweeper *service.Sweeper
	ready   atomic.Bool
	logger  zerolog.Logger
}

func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			c.SetRequest(c.Request().WithContext(reqctx.WithRequestID(c.Request().Context(), id)))
		},
	}))
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin(cfg.AllowedOrigins),
	}))

	dealRepo := repository.NewDealRepository(deps.DB)
	convRepo := repository.NewConversationRepository(deps.DB)
	msgRepo := repository.NewMessageRepository(deps.DB)
	notifRepo := repository.NewNotificationRepository(deps.DB)
	balanceRepo := repository.NewBalanceRepository(deps.DB)
	userRepo := repository.NewUserRepository(deps.DB)

	custodian := custody.NewRetrying(custody.NewLedgerCustodian(balanceRepo, logger), cfg.ReleaseRetryMaxElapsed, logger)
	dealSvc := service.NewDealService(dealRepo, custodian, service.DealConfig{
		Expiry:                cfg.DealExpiry,
		RejectDuplicateActive: cfg.RejectDuplicateActiveDeals,
		Now:                   deps.Now,
	}, logger)
	convSvc := service.NewConversationService(convRepo, msgRepo, deps.Now, logger)
	msgSvc := service.NewMessageService(convRepo, msgRepo, cfg.MaxMessageLength, deps.Now, logger)
	notifSvc := service.NewNotificationService(notifRepo, logger)

	hub := realtime.NewHub(logger)
	var (
		broker    *realtime.RedisBroker
		publisher service.EventPublisher = hub
	)
	if deps.Redis != nil {
		broker = realtime.NewRedisBroker(deps.Redis, hub, logger)
		publisher = broker
	}
	market := service.NewMarketplace(convSvc, msgSvc, dealSvc, notifSvc, publisher, logger)
	dealSvc.OnExpire(market)
	sweeper := service.NewSweeper(dealSvc, market, cfg.SweepInterval, cfg.SweepBatchSize, logger)

	dealHandler := handler.NewDealHandler(market)
	convHandler := handler.NewConversationHandler(market, logger)
	streamHandler := handler.NewStreamHandler(market, hub, cfg.AllowedOrigins, logger)
	notifHandler := handler.NewNotificationHandler(notifSvc)
	balanceHandler := handler.NewBalanceHandler(service.NewBalanceService(balanceRepo))
	userHandler := handler.NewUserHandler(service.NewUserService(userRepo))

	s := &Server{
		e:       e,
		repos:   []dbSetter{dealRepo, convRepo, msgRepo, notifRepo, balanceRepo, userRepo},
		hub:     hub,
		broker:  broker,
		sweeper: sweeper,
		logger:  logger,
	}
	s.ready.Store(deps.DB != nil)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":         true,
			"db_ready":   s.ready.Load(),
			"git_sha":    deps.GitSHA,
			"build_time": deps.BuildTime,
		})
	})

	auth := appmw.NewAuthMiddleware(deps.Verifier).RequireAuth
	messageLimit := messageRateLimiter(cfg.MessageRateLimit)

	api := e.Group("/api")
	api.POST("/deals", dealHandler.Initiate, auth)
	api.GET("/deals/buyer", dealHandler.ListAsBuyer, auth)
	api.GET("/deals/seller", dealHandler.ListAsSeller, auth)
	api.GET("/deals/:id", dealHandler.Get, auth)
	api.POST("/deals/:id/transition", dealHandler.Transition, auth)

	api.GET("/conversations", convHandler.List, auth)
	api.POST("/conversations/:listing_id/:seller_id", convHandler.Contact, auth)
	api.GET("/conversations/:id", convHandler.Get, auth)
	api.GET("/conversations/:id/messages", convHandler.ListMessages, auth)
	api.POST("/conversations/:id/messages", convHandler.SendMessage, auth, messageLimit)
	api.POST("/conversations/:id/mark-read", convHandler.MarkRead, auth)
	api.GET("/conversations/:id/ws", streamHandler.Stream, auth)

	api.GET("/notifications", notifHandler.List, auth)
	api.POST("/notifications/read-all", notifHandler.MarkAllRead, auth)
	api.GET("/me/balance", balanceHandler.Get, auth)
	api.GET("/users/:uid/public", userHandler.GetPublic)

	return s
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logger.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

// messageRateLimiter throttles message posts per authenticated user.
func messageRateLimiter(perSecond float64) echo.MiddlewareFunc {
	if perSecond <= 0 {
		perSecond = 5
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     int(perSecond * 2),
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if uid, _ := c.Get("uid").(string); uid != "" {
				return uid, nil
			}
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return handler.JSONError(c, http.StatusTooManyRequests, "rate_limited", "too many messages")
		},
	})
}

// allowOrigin accepts local development origins and the configured list.
func allowOrigin(allowed []string) func(origin string) (bool, error) {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if strings.HasPrefix(low, "http://localhost:") || strings.HasPrefix(low, "http://127.0.0.1:") ||
			strings.HasPrefix(low, "https://localhost:") || strings.HasPrefix(low, "https://127.0.0.1:") {
			return true, nil
		}
		if _, ok := set["*"]; ok {
			return true, nil
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return false, nil
		}
		_, ok := set[origin]
		return ok, nil
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Sweeper() *service.Sweeper {
	return s.sweeper
}

// Broker is nil when no Redis client was given.
func (s *Server) Broker() *realtime.RedisBroker {
	return s.broker
}

func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting server")
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// SetDB injects the database once it is reachable.
func (s *Server) SetDB(db *gorm.DB) {
	for _, r := range s.repos {
		r.SetDB(db)
	}
	s.ready.Store(db != nil)
}
