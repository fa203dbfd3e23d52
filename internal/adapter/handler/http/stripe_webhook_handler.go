package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/pixelmint/billing-service/internal/domain/billing"
	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/domain/repository"
	stripeProvider "github.com/pixelmint/billing-service/internal/infrastructure/provider/stripe"
	"github.com/pixelmint/billing-service/internal/usecase"
)

// StripeWebhookHandler verifies, deduplicates and dispatches billing
// webhook events.
type StripeWebhookHandler struct {
	logger          *zap.Logger
	webhookSecret   string
	events          repository.WebhookEventRepository
	userService     *usecase.UserService
	subscriptionSvc *usecase.SubscriptionService
	gateway         billing.Gateway
}

func NewStripeWebhookHandler(
	logger *zap.Logger,
	webhookSecret string,
	events repository.WebhookEventRepository,
	userService *usecase.UserService,
	subscriptionSvc *usecase.SubscriptionService,
	gateway billing.Gateway,
) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		logger:          logger,
		webhookSecret:   webhookSecret,
		events:          events,
		userService:     userService,
		subscriptionSvc: subscriptionSvc,
		gateway:         gateway,
	}
}

func (h *StripeWebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Error reading request body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	sig := c.Request().Header.Get("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(
		body,
		sig,
		h.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		h.logger.Error("Webhook signature verification failed",
			zap.Error(err),
		)
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "Webhook signature verification failed",
		})
	}

	h.logger.Info("Webhook event received",
		zap.String("type", string(event.Type)),
		zap.String("id", event.ID),
		zap.Time("created", time.Unix(event.Created, 0)),
	)

	// Dedup ledger. Failure to record must not drop the event; the
	// handlers below are idempotent anyway.
	alreadyProcessed, recordErr := h.events.Record(c.Request().Context(), event.ID, string(event.Type))
	if recordErr != nil {
		h.logger.Warn("Failed to record webhook event, processing anyway",
			zap.String("event_id", event.ID),
			zap.Error(recordErr))
	}
	if alreadyProcessed {
		return c.JSON(http.StatusOK, echo.Map{"received": true, "duplicate": true})
	}

	status, payload := h.dispatch(c, &event)

	if recordErr == nil {
		ctx := c.Request().Context()
		if status < 300 {
			if err := h.events.MarkProcessed(ctx, event.ID); err != nil {
				h.logger.Warn("Failed to mark webhook event processed", zap.Error(err))
			}
		} else {
			cause, _ := payload["error"].(string)
			if err := h.events.MarkFailed(ctx, event.ID, &webhookDispatchError{cause}); err != nil {
				h.logger.Warn("Failed to mark webhook event failed", zap.Error(err))
			}
		}
	}

	return c.JSON(status, payload)
}

type webhookDispatchError struct {
	msg string
}

func (e *webhookDispatchError) Error() string {
	if e.msg == "" {
		return "webhook dispatch failed"
	}
	return e.msg
}

func (h *StripeWebhookHandler) dispatch(c echo.Context, event *stripe.Event) (int, echo.Map) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return h.handleCheckoutCompleted(c, event)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return h.handleSubscriptionUpdated(c, event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return h.handleSubscriptionDeleted(c, event)
	case stripe.EventTypeCustomerSubscriptionCreated:
		return h.handleSubscriptionCreated(c, event)
	case stripe.EventTypeInvoicePaymentSucceeded:
		// Renewals arrive through customer.subscription.updated as well;
		// the invoice event is acknowledged without action.
		return http.StatusOK, echo.Map{"received": true}
	default:
		h.logger.Debug("Unhandled webhook event type",
			zap.String("type", string(event.Type)))
		return http.StatusOK, echo.Map{"received": true}
	}
}

// handleCheckoutCompleted resolves the purchasing user from session
// metadata and applies the purchased plan from live subscription state.
func (h *StripeWebhookHandler) handleCheckoutCompleted(c echo.Context, event *stripe.Event) (int, echo.Map) {
	ctx := c.Request().Context()

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("Error parsing checkout session", zap.Error(err))
		return http.StatusBadRequest, echo.Map{"error": "Error parsing webhook"}
	}

	userID := session.Metadata["userId"]
	externalID := session.Metadata["externalId"]
	if userID == "" && externalID == "" {
		h.logger.Error("Checkout session missing user metadata",
			zap.String("session_id", session.ID))
		return http.StatusBadRequest, echo.Map{"error": "Session metadata missing user identity"}
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		h.logger.Error("Checkout session has no subscription",
			zap.String("session_id", session.ID))
		return http.StatusBadRequest, echo.Map{"error": "Session has no subscription"}
	}

	user, err := h.resolveUser(c, userID, externalID)
	if err != nil {
		return http.StatusInternalServerError, echo.Map{"error": "Failed to resolve user"}
	}
	if user == nil {
		h.logger.Error("No user for checkout session",
			zap.String("session_id", session.ID),
			zap.String("user_id", userID),
			zap.String("external_id", externalID))
		return http.StatusNotFound, echo.Map{"error": "User not found"}
	}

	// Fetch live state rather than trusting the session snapshot: the
	// session does not carry the price or period end.
	live, err := h.gateway.GetSubscription(ctx, session.Subscription.ID)
	if err != nil {
		h.logger.Error("Failed to fetch subscription after checkout",
			zap.String("subscription_id", session.Subscription.ID),
			zap.Error(err))
		return http.StatusInternalServerError, echo.Map{"error": "Failed to fetch subscription"}
	}
	if live == nil {
		return http.StatusInternalServerError, echo.Map{"error": "Subscription not found at provider"}
	}
	if live.PriceID == "" {
		return http.StatusBadRequest, echo.Map{"error": "Subscription has no price"}
	}

	_, err = h.subscriptionSvc.UpdateUserSubscription(
		ctx,
		user.ExternalID,
		live.PriceID,
		live.ID,
		billing.PeriodEndOrFallback(live.CurrentPeriodEnd),
	)
	if err != nil {
		h.logger.Error("Failed to apply checkout result",
			zap.String("subscription_id", live.ID),
			zap.Error(err))
		return http.StatusInternalServerError, echo.Map{"error": "Failed to update subscription"}
	}

	return http.StatusOK, echo.Map{"received": true}
}

func (h *StripeWebhookHandler) handleSubscriptionUpdated(c echo.Context, event *stripe.Event) (int, echo.Map) {
	ctx := c.Request().Context()

	parsed, err := stripeProvider.ParseSubscriptionEvent(event.Data.Raw)
	if err != nil {
		h.logger.Error("Error parsing subscription payload", zap.Error(err))
		return http.StatusBadRequest, echo.Map{"error": "Error parsing webhook"}
	}

	user, err := h.subscriptionSvc.FindUserBySubscription(ctx, parsed.SubscriptionID, parsed.CustomerID)
	if err != nil {
		return http.StatusInternalServerError, echo.Map{"error": "Failed to resolve user"}
	}
	if user == nil {
		h.logger.Warn("No user for updated subscription",
			zap.String("subscription_id", parsed.SubscriptionID))
		return http.StatusNotFound, echo.Map{"error": "User not found"}
	}

	if parsed.PriceID == "" {
		return http.StatusBadRequest, echo.Map{"error": "Subscription has no price"}
	}

	// A scheduled cancellation keeps entitlements until period end.
	if parsed.CancelAtPeriodEnd {
		if err := h.subscriptionSvc.MarkCancelPending(ctx, parsed.SubscriptionID, parsed.PriceID, parsed.CurrentPeriodEnd); err != nil {
			h.logger.Error("Failed to mark cancellation pending",
				zap.String("subscription_id", parsed.SubscriptionID),
				zap.Error(err))
			return http.StatusInternalServerError, echo.Map{"error": "Failed to record cancellation"}
		}
		return http.StatusOK, echo.Map{"received": true}
	}

	_, err = h.subscriptionSvc.UpdateUserSubscription(ctx, user.ExternalID, parsed.PriceID, parsed.SubscriptionID, parsed.CurrentPeriodEnd)
	if err != nil {
		h.logger.Error("Failed to reconcile updated subscription",
			zap.String("subscription_id", parsed.SubscriptionID),
			zap.Error(err))
		return http.StatusInternalServerError, echo.Map{"error": "Failed to update subscription"}
	}

	return http.StatusOK, echo.Map{"received": true}
}

// handleSubscriptionDeleted downgrades the user. Unknown subscriptions are
// acknowledged, not errored: a 404 would make the provider retry an event
// this service can never act on.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(c echo.Context, event *stripe.Event) (int, echo.Map) {
	ctx := c.Request().Context()

	parsed, err := stripeProvider.ParseSubscriptionEvent(event.Data.Raw)
	if err != nil {
		h.logger.Error("Error parsing subscription payload", zap.Error(err))
		return http.StatusBadRequest, echo.Map{"error": "Error parsing webhook"}
	}

	user, err := h.subscriptionSvc.FindUserBySubscription(ctx, parsed.SubscriptionID, parsed.CustomerID)
	if err != nil {
		return http.StatusInternalServerError, echo.Map{"error": "Failed to resolve user"}
	}
	if user == nil {
		h.logger.Warn("No user for deleted subscription, acknowledging",
			zap.String("subscription_id", parsed.SubscriptionID))
		return http.StatusOK, echo.Map{"received": true}
	}

	local, err := h.subscriptionSvc.FindByStripeID(ctx, parsed.SubscriptionID)
	if err != nil {
		return http.StatusInternalServerError, echo.Map{"error": "Failed to load subscription"}
	}
	if local == nil {
		h.logger.Warn("No local subscription row for deletion, acknowledging",
			zap.String("subscription_id", parsed.SubscriptionID))
		return http.StatusOK, echo.Map{"received": true}
	}

	if _, err := h.subscriptionSvc.DowngradeToFree(ctx, user.ID); err != nil {
		h.logger.Error("Failed to downgrade after deletion",
			zap.String("subscription_id", parsed.SubscriptionID),
			zap.Error(err))
		return http.StatusInternalServerError, echo.Map{"error": "Failed to downgrade user"}
	}

	return http.StatusOK, echo.Map{"received": true}
}

// handleSubscriptionCreated only logs. Entitlements are applied by
// checkout.session.completed, which carries the user cross-reference.
func (h *StripeWebhookHandler) handleSubscriptionCreated(c echo.Context, event *stripe.Event) (int, echo.Map) {
	parsed, err := stripeProvider.ParseSubscriptionEvent(event.Data.Raw)
	if err != nil {
		h.logger.Error("Error parsing subscription payload", zap.Error(err))
		return http.StatusBadRequest, echo.Map{"error": "Error parsing webhook"}
	}

	h.logger.Info("Subscription created at provider",
		zap.String("subscription_id", parsed.SubscriptionID),
		zap.String("customer_id", parsed.CustomerID),
		zap.String("status", parsed.Status))

	return http.StatusOK, echo.Map{"received": true}
}

func (h *StripeWebhookHandler) resolveUser(c echo.Context, userID, externalID string) (*model.User, error) {
	ctx := c.Request().Context()

	if userID != "" {
		if id, err := uuid.Parse(userID); err == nil {
			user, err := h.userService.FindByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if user != nil {
				return user, nil
			}
		}
	}

	if externalID != "" {
		return h.userService.LookupByExternalID(ctx, externalID)
	}

	return nil, nil
}
