package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/middleware/auth"
	"github.com/pixelmint/billing-service/internal/usecase"
)

// CheckoutHandler serves checkout and billing portal session creation.
type CheckoutHandler struct {
	logger          *zap.Logger
	validator       *validator.Validate
	userService     *usecase.UserService
	subscriptionSvc *usecase.SubscriptionService
}

func NewCheckoutHandler(logger *zap.Logger, userService *usecase.UserService, subscriptionSvc *usecase.SubscriptionService) *CheckoutHandler {
	return &CheckoutHandler{
		logger:          logger,
		validator:       validator.New(),
		userService:     userService,
		subscriptionSvc: subscriptionSvc,
	}
}

// CreateCheckoutSessionRequest is the request body for checkout session creation
type CreateCheckoutSessionRequest struct {
	PriceID string `json:"priceId" validate:"required"`
}

func (h *CheckoutHandler) CreateCheckoutSession(c echo.Context) error {
	authUser, ok := auth.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	var req CreateCheckoutSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "priceId is required"})
	}

	ctx := c.Request().Context()

	// Checkout is a provisioning trigger too: a signed-in user may not
	// have a row yet if the identity webhook is still in flight.
	user, err := h.userService.EnsureUserExists(ctx, authUser.ExternalID, authUser.Email)
	if err != nil {
		h.logger.Error("Failed to ensure user before checkout",
			zap.String("external_id", authUser.ExternalID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to prepare checkout"})
	}

	url, err := h.subscriptionSvc.CreateCheckoutSession(ctx, user, req.PriceID)
	if err != nil {
		h.logger.Error("Failed to create checkout session",
			zap.String("external_id", authUser.ExternalID),
			zap.String("price_id", req.PriceID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create checkout session"})
	}

	return c.JSON(http.StatusOK, echo.Map{"url": url})
}

func (h *CheckoutHandler) CreatePortalSession(c echo.Context) error {
	authUser, ok := auth.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	ctx := c.Request().Context()

	user, err := h.userService.FindByExternalID(ctx, authUser.ExternalID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load user"})
	}

	url, err := h.subscriptionSvc.CreatePortalSession(ctx, user)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNoBillingProfile) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "No billing profile for user"})
		}
		h.logger.Error("Failed to create portal session",
			zap.String("external_id", authUser.ExternalID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create portal session"})
	}

	return c.JSON(http.StatusOK, echo.Map{"url": url})
}
