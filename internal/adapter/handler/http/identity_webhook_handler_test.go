package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pixelmint/billing-service/internal/domain/model"
	"github.com/pixelmint/billing-service/internal/usecase"
)

var testIdentitySecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("identity-test-secret-key-32bytes"))

func newIdentityEnv(t *testing.T) (*IdentityWebhookHandler, *gorm.DB, *usecase.UserService) {
	t.Helper()

	env := newWebhookEnv(t)
	handler, err := NewIdentityWebhookHandler(zap.NewNop(), testIdentitySecret, env.users)
	require.NoError(t, err)
	return handler, env.db, env.users
}

func signedIdentityRequest(t *testing.T, payload []byte) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()

	wh, err := svix.NewWebhook(testIdentitySecret)
	require.NoError(t, err)

	msgID := "msg_test"
	ts := time.Now()
	signature, err := wh.Sign(msgID, ts, payload)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/identity", strings.NewReader(string(payload)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
	req.Header.Set("svix-signature", signature)
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func identityEvent(eventType, externalID, email string) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"type": eventType,
		"data": map[string]interface{}{
			"id": externalID,
			"email_addresses": []map[string]interface{}{
				{"email_address": email},
			},
		},
	})
	return payload
}

func TestIdentityWebhookUserCreated(t *testing.T) {
	handler, db, _ := newIdentityEnv(t)

	rec, c := signedIdentityRequest(t, identityEvent("user.created", "ext_1", "one@example.com"))
	require.NoError(t, handler.HandleWebhook(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var user model.User
	require.NoError(t, db.Where("external_id = ?", "ext_1").First(&user).Error)
	assert.Equal(t, "one@example.com", user.Email)
	assert.Equal(t, model.PlanTierFree, user.Plan)
	assert.Equal(t, model.FreeTierCredits, user.Credits)
}

func TestIdentityWebhookUserCreatedIsIdempotent(t *testing.T) {
	handler, db, _ := newIdentityEnv(t)

	rec, c := signedIdentityRequest(t, identityEvent("user.created", "ext_1", "one@example.com"))
	require.NoError(t, handler.HandleWebhook(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, c = signedIdentityRequest(t, identityEvent("user.created", "ext_1", "one@example.com"))
	require.NoError(t, handler.HandleWebhook(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIdentityWebhookMissingHeaders(t *testing.T) {
	handler, _, _ := newIdentityEnv(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/identity", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	require.NoError(t, handler.HandleWebhook(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentityWebhookBadSignature(t *testing.T) {
	handler, db, _ := newIdentityEnv(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/identity", strings.NewReader(string(identityEvent("user.created", "ext_1", "one@example.com"))))
	req.Header.Set("svix-id", "msg_test")
	req.Header.Set("svix-timestamp", "1700000000")
	req.Header.Set("svix-signature", "v1,bm90LWEtcmVhbC1zaWduYXR1cmU=")
	rec := httptest.NewRecorder()

	require.NoError(t, handler.HandleWebhook(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestIdentityWebhookUserUpdated(t *testing.T) {
	handler, db, users := newIdentityEnv(t)

	_, err := users.EnsureUserExists(context.Background(), "ext_1", "old@example.com")
	require.NoError(t, err)

	rec, c := signedIdentityRequest(t, identityEvent("user.updated", "ext_1", "new@example.com"))
	require.NoError(t, handler.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var user model.User
	require.NoError(t, db.Where("external_id = ?", "ext_1").First(&user).Error)
	assert.Equal(t, "new@example.com", user.Email)
}

func TestIdentityWebhookUserDeleted(t *testing.T) {
	handler, db, users := newIdentityEnv(t)

	_, err := users.EnsureUserExists(context.Background(), "ext_1", "one@example.com")
	require.NoError(t, err)

	rec, c := signedIdentityRequest(t, identityEvent("user.deleted", "ext_1", ""))
	require.NoError(t, handler.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	// Redelivery of the deletion is acknowledged, not errored.
	rec, c = signedIdentityRequest(t, identityEvent("user.deleted", "ext_1", ""))
	require.NoError(t, handler.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityWebhookUnknownTypeAcknowledged(t *testing.T) {
	handler, _, _ := newIdentityEnv(t)

	rec, c := signedIdentityRequest(t, identityEvent("session.created", "ext_1", ""))
	require.NoError(t, handler.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
