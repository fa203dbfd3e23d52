package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/middleware/auth"
	"github.com/pixelmint/billing-service/internal/usecase"
)

// CreditsHandler serves credit consumption.
type CreditsHandler struct {
	logger      *zap.Logger
	userService *usecase.UserService
}

func NewCreditsHandler(logger *zap.Logger, userService *usecase.UserService) *CreditsHandler {
	return &CreditsHandler{
		logger:      logger,
		userService: userService,
	}
}

// ConsumeCreditsRequest is the request body for credit consumption
type ConsumeCreditsRequest struct {
	Amount int `json:"amount"`
}

func (h *CreditsHandler) ConsumeCredits(c echo.Context) error {
	authUser, ok := auth.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Authentication required"})
	}

	var req ConsumeCreditsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request body"})
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	if req.Amount < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Amount must be positive"})
	}

	remaining, err := h.userService.ConsumeCredits(c.Request().Context(), authUser.ExternalID, req.Amount)
	if err != nil {
		var insufficient *domainErrors.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			return c.JSON(http.StatusPaymentRequired, echo.Map{
				"error":     "Insufficient credits",
				"requested": insufficient.Requested,
				"available": insufficient.Available,
			})
		}
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "User not found"})
		}
		h.logger.Error("Failed to consume credits",
			zap.String("external_id", authUser.ExternalID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to consume credits"})
	}

	return c.JSON(http.StatusOK, echo.Map{"credits": remaining})
}
