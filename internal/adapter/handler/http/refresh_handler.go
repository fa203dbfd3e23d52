package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/usecase"
	"github.com/pixelmint/billing-service/internal/middleware/auth"
)

// RefreshHandler serves the foreground polling endpoint: the client calls
// it after sign-in or checkout return to pull current entitlements,
// provisioning the user row on the fly if the webhooks haven't landed yet.
type RefreshHandler struct {
	logger      *zap.Logger
	userService *usecase.UserService
}

func NewRefreshHandler(logger *zap.Logger, userService *usecase.UserService) *RefreshHandler {
	return &RefreshHandler{
		logger:      logger,
		userService: userService,
	}
}

func (h *RefreshHandler) Refresh(c echo.Context) error {
	authUser, ok := auth.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":          "Authentication required",
			"retry_after_ms": 2000,
		})
	}

	ctx := c.Request().Context()

	user, err := h.userService.FindByExternalID(ctx, authUser.ExternalID)
	if err != nil {
		if !errors.Is(err, domainErrors.ErrUserNotFound) {
			h.logger.Error("Failed to load user for refresh",
				zap.String("external_id", authUser.ExternalID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to load user"})
		}

		// Still no row after retries: the identity webhook was lost or is
		// very late. Provision from the token instead of failing the poll.
		if authUser.Email == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Token carries no email, cannot provision user"})
		}
		user, err = h.userService.EnsureUserExists(ctx, authUser.ExternalID, authUser.Email)
		if err != nil {
			h.logger.Error("Failed to provision user during refresh",
				zap.String("external_id", authUser.ExternalID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to provision user"})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"refreshed": true,
		"credits":   user.Credits,
		"plan":      user.Plan,
		"userId":    user.ID,
	})
}
