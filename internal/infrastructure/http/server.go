package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/pixelmint/billing-service/internal/adapter/handler/http"
	"github.com/pixelmint/billing-service/internal/config"
	"github.com/pixelmint/billing-service/internal/domain/billing"
	"github.com/pixelmint/billing-service/internal/domain/plan"
	"github.com/pixelmint/billing-service/internal/infrastructure/database"
	"github.com/pixelmint/billing-service/internal/middleware/auth"
	"github.com/pixelmint/billing-service/internal/usecase"
)

type Server struct {
	config  *config.Config
	logger  *zap.Logger
	echo    *echo.Echo
	repos   *database.Repositories
	gateway billing.Gateway
}

func NewServer(cfg *config.Config, logger *zap.Logger, repos *database.Repositories, gateway billing.Gateway) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	return &Server{
		config:  cfg,
		logger:  logger,
		echo:    e,
		repos:   repos,
		gateway: gateway,
	}
}

func (s *Server) Start() error {
	// Setup routes
	if err := s.setupRoutes(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() error {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	// Initialize services
	catalog := plan.NewCatalog(
		s.config.Service.Plans.StarterPriceID,
		s.config.Service.Plans.ProPriceID,
		s.config.Service.Plans.EnterprisePriceID,
	)
	userService := usecase.NewUserService(s.repos.User, s.logger)
	subscriptionSvc := usecase.NewSubscriptionService(
		s.repos.User,
		s.repos.Subscription,
		s.gateway,
		catalog,
		s.config.Service.ClientURL,
		s.logger,
	)

	// Initialize handlers
	stripeWebhookHandler := handlers.NewStripeWebhookHandler(
		s.logger,
		s.config.Service.StripeWebhookSecret,
		s.repos.WebhookEvent,
		userService,
		subscriptionSvc,
		s.gateway,
	)
	identityWebhookHandler, err := handlers.NewIdentityWebhookHandler(
		s.logger,
		s.config.Service.IdentityWebhookSecret,
		userService,
	)
	if err != nil {
		return err
	}
	checkoutHandler := handlers.NewCheckoutHandler(s.logger, userService, subscriptionSvc)
	refreshHandler := handlers.NewRefreshHandler(s.logger, userService)
	creditsHandler := handlers.NewCreditsHandler(s.logger, userService)

	// Webhook routes (signature-verified, outside API versioning)
	s.echo.POST("/webhook/stripe", stripeWebhookHandler.HandleWebhook)
	s.echo.POST("/webhook/identity", identityWebhookHandler.HandleWebhook)

	// JWT middleware configuration
	jwtConfig := auth.JWTConfig{
		Secret: s.config.Service.JWTSecret,
		Logger: s.logger,
	}

	// Protected API v1 routes
	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))
	v1.POST("/checkout/session", checkoutHandler.CreateCheckoutSession)
	v1.POST("/portal/session", checkoutHandler.CreatePortalSession)
	v1.POST("/refresh", refreshHandler.Refresh)
	v1.POST("/credits/consume", creditsHandler.ConsumeCredits)

	return nil
}
