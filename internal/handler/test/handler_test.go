package test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	handlers "nearexpiry/internal/handler"
	"nearexpiry/internal/line"
	"nearexpiry/internal/logger"
	"nearexpiry/internal/service"
)

func newHandlers(webhook *MockWebhookProcessor, posts *MockPostService, db *MockHealthChecker) *handlers.Handlers {
	return &handlers.Handlers{
		Webhook:     webhook,
		PostService: posts,
		DB:          db,
		Validate:    validator.New(),
		Log:         logger.Nop(),
	}
}

func TestLineWebhookHandler(t *testing.T) {
	body := []byte(`{"destination":"Ubot","events":[]}`)

	tests := []struct {
		name           string
		processErr     error
		expectedStatus int
	}{
		{name: "processed", processErr: nil, expectedStatus: http.StatusOK},
		{name: "bad signature", processErr: line.ErrSignatureInvalid, expectedStatus: http.StatusUnauthorized},
		{name: "malformed", processErr: fmt.Errorf("%w: unexpected EOF", line.ErrMalformedPayload), expectedStatus: http.StatusBadRequest},
		{name: "store failure", processErr: fmt.Errorf("%w: connection reset", service.ErrStoreWrite), expectedStatus: http.StatusInternalServerError},
		{name: "other failure", processErr: errors.New("fetch image content: timeout"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			webhook := new(MockWebhookProcessor)
			webhook.On("ProcessWebhook", mock.Anything, body, "sig==").Return(tt.processErr)
			h := newHandlers(webhook, new(MockPostService), new(MockHealthChecker))

			req := httptest.NewRequest(http.MethodPost, "/webhook/line", bytes.NewReader(body))
			req.Header.Set(line.SignatureHeader, "sig==")
			rr := httptest.NewRecorder()

			h.LineWebhook(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			webhook.AssertExpectations(t)
		})
	}
}

func TestLineWebhookHandler_BodyTooLarge(t *testing.T) {
	webhook := new(MockWebhookProcessor)
	h := newHandlers(webhook, new(MockPostService), new(MockHealthChecker))

	req := httptest.NewRequest(http.MethodPost, "/webhook/line", bytes.NewReader(make([]byte, 2<<20)))
	rr := httptest.NewRecorder()

	h.LineWebhook(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	webhook.AssertNotCalled(t, "ProcessWebhook", mock.Anything, mock.Anything, mock.Anything)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		dbErr          error
		expectedStatus int
		expectedBody   string
	}{
		{name: "healthy", expectedStatus: http.StatusOK, expectedBody: "ok"},
		{name: "database down", dbErr: errors.New("dial tcp: refused"), expectedStatus: http.StatusServiceUnavailable, expectedBody: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(MockHealthChecker)
			db.On("HealthCheck").Return(tt.dbErr)
			h := newHandlers(new(MockWebhookProcessor), new(MockPostService), db)

			rr := httptest.NewRecorder()
			h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			var resp handlers.HealthResponse
			assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedBody, resp.Status)
		})
	}
}
