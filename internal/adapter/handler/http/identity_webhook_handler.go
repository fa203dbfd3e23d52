package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	domainErrors "github.com/pixelmint/billing-service/internal/domain/errors"
	"github.com/pixelmint/billing-service/internal/usecase"
)

// IdentityWebhookHandler processes identity-provider user lifecycle events.
type IdentityWebhookHandler struct {
	logger      *zap.Logger
	verifier    *svix.Webhook
	userService *usecase.UserService
}

func NewIdentityWebhookHandler(logger *zap.Logger, secret string, userService *usecase.UserService) (*IdentityWebhookHandler, error) {
	verifier, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to init identity webhook verifier: %w", err)
	}

	return &IdentityWebhookHandler{
		logger:      logger,
		verifier:    verifier,
		userService: userService,
	}, nil
}

type identityUserEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (e *identityUserEvent) primaryEmail() string {
	if len(e.Data.EmailAddresses) == 0 {
		return ""
	}
	return e.Data.EmailAddresses[0].EmailAddress
}

func (h *IdentityWebhookHandler) HandleWebhook(c echo.Context) error {
	headers := c.Request().Header
	if headers.Get("svix-id") == "" || headers.Get("svix-timestamp") == "" || headers.Get("svix-signature") == "" {
		h.logger.Warn("Identity webhook missing signature headers")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing signature headers"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	if err := h.verifier.Verify(body, headers); err != nil {
		h.logger.Error("Identity webhook signature verification failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Signature verification failed"})
	}

	var event identityUserEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("Error parsing identity event", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error parsing webhook"})
	}

	h.logger.Info("Identity event received",
		zap.String("type", event.Type),
		zap.String("external_id", event.Data.ID))

	ctx := c.Request().Context()

	switch event.Type {
	case "user.created":
		if event.Data.ID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Event missing user id"})
		}
		user, err := h.userService.EnsureUserExists(ctx, event.Data.ID, event.primaryEmail())
		if err != nil {
			h.logger.Error("Failed to provision user",
				zap.String("external_id", event.Data.ID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to provision user"})
		}
		return c.JSON(http.StatusCreated, echo.Map{"received": true, "userId": user.ID})

	case "user.updated":
		if event.Data.ID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Event missing user id"})
		}
		if email := event.primaryEmail(); email != "" {
			if err := h.userService.UpdateEmail(ctx, event.Data.ID, email); err != nil && !errors.Is(err, domainErrors.ErrUserNotFound) {
				h.logger.Error("Failed to update user email",
					zap.String("external_id", event.Data.ID),
					zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update user"})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"received": true})

	case "user.deleted":
		err := h.userService.DeleteByExternalID(ctx, event.Data.ID)
		if err != nil && !errors.Is(err, domainErrors.ErrUserNotFound) {
			h.logger.Error("Failed to delete user",
				zap.String("external_id", event.Data.ID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete user"})
		}
		return c.JSON(http.StatusOK, echo.Map{"received": true})

	default:
		h.logger.Debug("Unhandled identity event type", zap.String("type", event.Type))
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
}
