package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/orderdesk-backend/internal/config"
	"github.com/ignatzorin/orderdesk-backend/internal/http/handlers"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

type staticTokens map[string]models.Actor

func (s staticTokens) ParseAccess(token string) (models.Actor, error) {
	actor, ok := s[token]
	if !ok {
		return models.Actor{}, errors.New("unknown token")
	}
	return actor, nil
}

type noopGateway struct{ callbacks int }

func (g *noopGateway) Initiate(context.Context, models.Actor, service.InitiateInput) (*service.InitiateResult, error) {
	return nil, errors.New("not used")
}

func (g *noopGateway) QueryMobileMoney(context.Context, models.Actor, string) (*service.PollResult, error) {
	return nil, errors.New("not used")
}

func (g *noopGateway) HandleMobileMoneyCallback(context.Context, []byte) { g.callbacks++ }

func (g *noopGateway) VerifyCardPayment(context.Context, models.Actor, service.VerifyCardInput) (*service.PollResult, error) {
	return nil, errors.New("not used")
}

func (g *noopGateway) HandleCardWebhook(context.Context, []byte, string) {}

type countingReconciler struct{ calls int }

func (r *countingReconciler) ReconcileAll(context.Context) (service.ReconcileReport, error) {
	r.calls++
	return service.ReconcileReport{}, nil
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func setup(t *testing.T) (http.Handler, *noopGateway, *countingReconciler) {
	t.Helper()
	gw := &noopGateway{}
	ledger := &countingReconciler{}
	tokens := staticTokens{
		"admin":      {UserID: uuid.New(), Role: models.RoleAdmin},
		"freelancer": {UserID: uuid.New(), Role: models.RoleFreelancer},
	}
	cfg := &config.Config{Env: "test", RateLimitLimit: 100, RateLimitPeriod: time.Minute}

	engine := SetupRouter(cfg, Handlers{
		Health:        handlers.NewHealthHandler(okPinger{}, nil),
		Jobs:          handlers.NewJobHandler(nil),
		Payments:      handlers.NewPaymentHandler(nil),
		Gateway:       handlers.NewGatewayHandler(gw),
		Invoices:      handlers.NewInvoiceHandler(nil),
		Notifications: handlers.NewNotificationHandler(nil),
		Ledger:        handlers.NewLedgerHandler(ledger),
	}, tokens)
	return engine, gw, ledger
}

func serve(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	h, _, _ := setup(t)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health", "", "").Code)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	h, _, _ := setup(t)

	for _, path := range []string{"/api/jobs", "/api/invoices", "/api/notifications"} {
		assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, path, "", "").Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodPost, "/api/payment-gateway/initiate", "", "{}").Code)
}

func TestRouter_CallbackIsPublic(t *testing.T) {
	h, gw, _ := setup(t)

	w := serve(h, http.MethodPost, "/api/payment-gateway/callback", "", "{}")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, gw.callbacks)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_AdminRoutes(t *testing.T) {
	h, _, ledger := setup(t)

	w := serve(h, http.MethodPost, "/api/admin/balances/reconcile", "freelancer", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, ledger.calls)

	w = serve(h, http.MethodPost, "/api/admin/balances/reconcile", "admin", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ledger.calls)
}

func TestRouter_BidsAreFreelancerOnly(t *testing.T) {
	h, _, _ := setup(t)

	w := serve(h, http.MethodPost, "/api/jobs/"+uuid.NewString()+"/bids", "admin", `{"amount":10}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_InvalidUUIDRejected(t *testing.T) {
	h, _, _ := setup(t)

	w := serve(h, http.MethodGet, "/api/payments/not-a-uuid", "admin", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
