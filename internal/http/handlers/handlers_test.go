package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/orderdesk-backend/internal/gateway"
	"github.com/ignatzorin/orderdesk-backend/internal/http/middleware"
	"github.com/ignatzorin/orderdesk-backend/internal/http/response"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

type mockJobs struct{ mock.Mock }

func (m *mockJobs) CreateJob(ctx context.Context, actor models.Actor, in service.CreateJobInput) (*models.Job, error) {
	args := m.Called(ctx, actor, in)
	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *mockJobs) GetJob(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, actor, id)
	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *mockJobs) ListJobs(ctx context.Context, actor models.Actor, status string, limit, offset int) ([]models.Job, error) {
	args := m.Called(ctx, actor, status, limit, offset)
	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *mockJobs) SetStatus(ctx context.Context, actor models.Actor, id uuid.UUID, upd service.StatusUpdate) (*models.Job, error) {
	args := m.Called(ctx, actor, id, upd)
	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *mockJobs) Approve(ctx context.Context, actor models.Actor, id uuid.UUID, approved bool) (*models.Job, error) {
	args := m.Called(ctx, actor, id, approved)
	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *mockJobs) Assign(ctx context.Context, actor models.Actor, jobID, freelancerID uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, actor, jobID, freelancerID)
	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *mockJobs) PlaceBid(ctx context.Context, actor models.Actor, jobID uuid.UUID, in service.PlaceBidInput) (*models.Bid, error) {
	args := m.Called(ctx, actor, jobID, in)
	bid, _ := args.Get(0).(*models.Bid)
	return bid, args.Error(1)
}

func (m *mockJobs) ListBids(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.Bid, error) {
	args := m.Called(ctx, actor, jobID)
	bids, _ := args.Get(0).([]models.Bid)
	return bids, args.Error(1)
}

func (m *mockJobs) ListAttachments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.JobAttachment, error) {
	args := m.Called(ctx, actor, jobID)
	attachments, _ := args.Get(0).([]models.JobAttachment)
	return attachments, args.Error(1)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Initiate(ctx context.Context, actor models.Actor, in service.InitiateInput) (*service.InitiateResult, error) {
	args := m.Called(ctx, actor, in)
	res, _ := args.Get(0).(*service.InitiateResult)
	return res, args.Error(1)
}

func (m *mockGateway) QueryMobileMoney(ctx context.Context, actor models.Actor, checkoutRequestID string) (*service.PollResult, error) {
	args := m.Called(ctx, actor, checkoutRequestID)
	res, _ := args.Get(0).(*service.PollResult)
	return res, args.Error(1)
}

func (m *mockGateway) HandleMobileMoneyCallback(ctx context.Context, body []byte) {
	m.Called(ctx, body)
}

func (m *mockGateway) VerifyCardPayment(ctx context.Context, actor models.Actor, in service.VerifyCardInput) (*service.PollResult, error) {
	args := m.Called(ctx, actor, in)
	res, _ := args.Get(0).(*service.PollResult)
	return res, args.Error(1)
}

func (m *mockGateway) HandleCardWebhook(ctx context.Context, body []byte, signature string) {
	m.Called(ctx, body, signature)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) GetPayment(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, actor, id)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockPayments) ListPayments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.Payment, error) {
	args := m.Called(ctx, actor, jobID)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

func (m *mockPayments) ConfirmManual(ctx context.Context, actor models.Actor, paymentID uuid.UUID, confirmed bool) (*service.ConfirmResult, error) {
	args := m.Called(ctx, actor, paymentID, confirmed)
	res, _ := args.Get(0).(*service.ConfirmResult)
	return res, args.Error(1)
}

type mockNotifications struct{ mock.Mock }

func (m *mockNotifications) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	args := m.Called(ctx, userID, limit, offset, unreadOnly)
	n, _ := args.Get(0).([]models.Notification)
	return n, args.Error(1)
}

func (m *mockNotifications) MarkAsRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockNotifications) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockNotifications) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type reconcilerFunc func(ctx context.Context) (service.ReconcileReport, error)

func (f reconcilerFunc) ReconcileAll(ctx context.Context) (service.ReconcileReport, error) {
	return f(ctx)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// withActor имитирует AuthMiddleware.
func withActor(actor models.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, actor.UserID)
		c.Set(middleware.ContextRoleKey, actor.Role)
		c.Next()
	}
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func do(r *gin.Engine, method, path string, body []byte, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var out response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestJobHandler_GetJob(t *testing.T) {
	client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}

	t.Run("no actor", func(t *testing.T) {
		r := newTestEngine()
		r.GET("/jobs/:id", NewJobHandler(&mockJobs{}).GetJob)
		w := do(r, http.MethodGet, "/jobs/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		r := newTestEngine()
		r.GET("/jobs/:id", withActor(client), NewJobHandler(&mockJobs{}).GetJob)
		w := do(r, http.MethodGet, "/jobs/abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		jobs := &mockJobs{}
		id := uuid.New()
		jobs.On("GetJob", mock.Anything, client, id).Return(nil, apperror.ErrJobNotFound)

		r := newTestEngine()
		r.GET("/jobs/:id", withActor(client), NewJobHandler(jobs).GetJob)
		w := do(r, http.MethodGet, "/jobs/"+id.String(), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decode(t, w)
		assert.False(t, body.Success)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
	})

	t.Run("internal errors are masked", func(t *testing.T) {
		jobs := &mockJobs{}
		id := uuid.New()
		jobs.On("GetJob", mock.Anything, client, id).Return(nil, errors.New("pq: relation jobs does not exist"))

		r := newTestEngine()
		r.GET("/jobs/:id", withActor(client), NewJobHandler(jobs).GetJob)
		w := do(r, http.MethodGet, "/jobs/"+id.String(), nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
	})
}

func TestJobHandler_UpdateStatus(t *testing.T) {
	client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}
	id := uuid.New()
	jobs := &mockJobs{}
	jobs.On("SetStatus", mock.Anything, client, id, mock.MatchedBy(func(u service.StatusUpdate) bool {
		return u.Status == "revision" && u.RevisionRequested != nil && *u.RevisionRequested &&
			u.RevisionNotes != nil && *u.RevisionNotes == "fix intro" && u.ClientApproved == nil
	})).Return(&models.Job{ID: id, Status: "revision"}, nil)

	r := newTestEngine()
	r.PATCH("/jobs/:id/status", withActor(client), NewJobHandler(jobs).UpdateStatus)
	w := do(r, http.MethodPatch, "/jobs/"+id.String()+"/status",
		[]byte(`{"status":"revision","revision_requested":true,"revision_notes":"fix intro"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	jobs.AssertExpectations(t)
}

func TestJobHandler_ApproveRequiresFlag(t *testing.T) {
	admin := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
	jobs := &mockJobs{}

	r := newTestEngine()
	r.PATCH("/jobs/:id/approve", withActor(admin), NewJobHandler(jobs).Approve)
	w := do(r, http.MethodPatch, "/jobs/"+uuid.NewString()+"/approve", []byte(`{}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	jobs.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJobHandler_ApproveFalseIsPassedThrough(t *testing.T) {
	admin := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
	id := uuid.New()
	jobs := &mockJobs{}
	jobs.On("Approve", mock.Anything, admin, id, false).Return(&models.Job{ID: id, Status: "cancelled"}, nil)

	r := newTestEngine()
	r.PATCH("/jobs/:id/approve", withActor(admin), NewJobHandler(jobs).Approve)
	w := do(r, http.MethodPatch, "/jobs/"+id.String()+"/approve", []byte(`{"approved":false}`))

	assert.Equal(t, http.StatusOK, w.Code)
	jobs.AssertExpectations(t)
}

func TestJobHandler_ListJobsPaginates(t *testing.T) {
	freelancer := models.Actor{UserID: uuid.New(), Role: models.RoleFreelancer}
	jobs := &mockJobs{}
	jobs.On("ListJobs", mock.Anything, freelancer, "in_progress", 100, 0).
		Return([]models.Job{{ID: uuid.New()}}, nil)

	r := newTestEngine()
	r.GET("/jobs", withActor(freelancer), NewJobHandler(jobs).ListJobs)
	w := do(r, http.MethodGet, "/jobs?status=in_progress&limit=500&offset=-3", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var body response.PaginatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Pagination.Count)
	assert.False(t, body.Pagination.HasMore)
}

func TestJobHandler_CreateJobConflict(t *testing.T) {
	client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}
	jobs := &mockJobs{}
	jobs.On("CreateJob", mock.Anything, client, mock.MatchedBy(func(in service.CreateJobInput) bool {
		return in.OrderNumber == "ab12" && in.Amount == 1500
	})).Return(nil, apperror.ErrDuplicateOrderNumber)

	r := newTestEngine()
	r.POST("/jobs", withActor(client), NewJobHandler(jobs).CreateJob)
	w := do(r, http.MethodPost, "/jobs",
		[]byte(`{"order_number":"ab12","title":"Essay","amount":1500,"deadline":"2026-11-02T18:00:00Z"}`))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decode(t, w).Error.Code)
}

func TestGatewayHandler_CallbackAlwaysAccepted(t *testing.T) {
	cases := map[string]func(m *mockGateway){
		"service handles body": func(m *mockGateway) {
			m.On("HandleMobileMoneyCallback", mock.Anything, []byte("not json")).Return()
		},
		"service panics": func(m *mockGateway) {
			m.On("HandleMobileMoneyCallback", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
				panic("boom")
			}).Return()
		},
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			gw := &mockGateway{}
			setup(gw)

			r := newTestEngine()
			r.POST("/callback", NewGatewayHandler(gw).Callback)
			w := do(r, http.MethodPost, "/callback", []byte("not json"))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())
			gw.AssertExpectations(t)
		})
	}
}

func TestGatewayHandler_CardWebhookPassesSignature(t *testing.T) {
	gw := &mockGateway{}
	body := []byte(`{"event":"charge.success"}`)
	gw.On("HandleCardWebhook", mock.Anything, body, "sig123").Return()

	r := newTestEngine()
	r.POST("/card/webhook", NewGatewayHandler(gw).CardWebhook)
	w := do(r, http.MethodPost, "/card/webhook", body, "x-paystack-signature", "sig123")

	assert.Equal(t, http.StatusOK, w.Code)
	gw.AssertExpectations(t)
}

func TestGatewayHandler_Initiate(t *testing.T) {
	client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}
	jobID := uuid.New()

	t.Run("not configured", func(t *testing.T) {
		gw := &mockGateway{}
		gw.On("Initiate", mock.Anything, client, mock.Anything).Return(nil, apperror.ErrGatewayNotConfigured)

		r := newTestEngine()
		r.POST("/initiate", withActor(client), NewGatewayHandler(gw).Initiate)
		w := do(r, http.MethodPost, "/initiate",
			[]byte(`{"phone":"0712345678","amount":1000,"job_id":"`+jobID.String()+`"}`))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "GATEWAY_NOT_CONFIGURED", decode(t, w).Error.Code)
	})

	t.Run("created", func(t *testing.T) {
		gw := &mockGateway{}
		gw.On("Initiate", mock.Anything, client, service.InitiateInput{
			Phone:  "0712345678",
			Amount: 1000,
			JobID:  jobID,
		}).Return(&service.InitiateResult{Payment: &models.Payment{JobID: jobID}, CustomerMessage: "ok"}, nil)

		r := newTestEngine()
		r.POST("/initiate", withActor(client), NewGatewayHandler(gw).Initiate)
		w := do(r, http.MethodPost, "/initiate",
			[]byte(`{"phone":"0712345678","amount":1000,"job_id":"`+jobID.String()+`"}`))

		assert.Equal(t, http.StatusCreated, w.Code)
		gw.AssertExpectations(t)
	})

	t.Run("missing job id", func(t *testing.T) {
		r := newTestEngine()
		r.POST("/initiate", withActor(client), NewGatewayHandler(&mockGateway{}).Initiate)
		w := do(r, http.MethodPost, "/initiate", []byte(`{"phone":"0712345678","amount":1000}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGatewayHandler_Query(t *testing.T) {
	client := models.Actor{UserID: uuid.New(), Role: models.RoleClient}
	gw := &mockGateway{}
	gw.On("QueryMobileMoney", mock.Anything, client, "ws_CO_1").
		Return(&service.PollResult{Payment: &models.Payment{}, State: gateway.StatePending}, nil)

	r := newTestEngine()
	r.POST("/query", withActor(client), NewGatewayHandler(gw).Query)
	w := do(r, http.MethodPost, "/query", []byte(`{"checkout_request_id":"ws_CO_1"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"pending"`)
}

func TestPaymentHandler_Confirm(t *testing.T) {
	admin := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
	id := uuid.New()
	payments := &mockPayments{}
	payments.On("ConfirmManual", mock.Anything, admin, id, false).
		Return(&service.ConfirmResult{Payment: &models.Payment{ID: id, Status: models.PaymentStatusFailed}, Applied: true}, nil)

	r := newTestEngine()
	r.PATCH("/payments/:id/confirm", withActor(admin), NewPaymentHandler(payments).Confirm)
	w := do(r, http.MethodPatch, "/payments/"+id.String()+"/confirm", []byte(`{"confirmed":false}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":true`)
	payments.AssertExpectations(t)
}

func TestNotificationHandler(t *testing.T) {
	user := models.Actor{UserID: uuid.New(), Role: models.RoleFreelancer}

	t.Run("unread count", func(t *testing.T) {
		n := &mockNotifications{}
		n.On("CountUnread", mock.Anything, user.UserID).Return(4, nil)

		r := newTestEngine()
		r.GET("/notifications/unread/count", withActor(user), NewNotificationHandler(n).CountUnread)
		w := do(r, http.MethodGet, "/notifications/unread/count", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"data":{"count":4}}`, w.Body.String())
	})

	t.Run("mark foreign notification", func(t *testing.T) {
		id := uuid.New()
		n := &mockNotifications{}
		n.On("MarkAsRead", mock.Anything, id, user.UserID).Return(apperror.ErrForbidden)

		r := newTestEngine()
		r.PATCH("/notifications/:id/read", withActor(user), NewNotificationHandler(n).MarkAsRead)
		w := do(r, http.MethodPatch, "/notifications/"+id.String()+"/read", nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("read all", func(t *testing.T) {
		n := &mockNotifications{}
		n.On("MarkAllAsRead", mock.Anything, user.UserID).Return(int64(3), nil)

		r := newTestEngine()
		r.PATCH("/notifications/read-all", withActor(user), NewNotificationHandler(n).MarkAllAsRead)
		w := do(r, http.MethodPatch, "/notifications/read-all", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"data":{"updated":3}}`, w.Body.String())
	})
}

func TestLedgerHandler_Reconcile(t *testing.T) {
	h := NewLedgerHandler(reconcilerFunc(func(context.Context) (service.ReconcileReport, error) {
		return service.ReconcileReport{Processed: 5, Failed: 1}, nil
	}))

	r := newTestEngine()
	r.POST("/reconcile", h.Reconcile)
	w := do(r, http.MethodPost, "/reconcile", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"processed":5,"failed":1}}`, w.Body.String())
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy with unconfigured gateway", func(t *testing.T) {
		h := NewHealthHandler(pingerFunc(func(context.Context) error { return nil }),
			map[string]bool{"mpesa": false, "card": true})

		r := newTestEngine()
		r.GET("/health", h.Health)
		w := do(r, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var body HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "not configured", body.Checks["gateway_mpesa"])
		assert.Equal(t, "configured", body.Checks["gateway_card"])
	})

	t.Run("database down", func(t *testing.T) {
		h := NewHealthHandler(pingerFunc(func(context.Context) error { return errors.New("dial tcp") }), nil)

		r := newTestEngine()
		r.GET("/health", h.Health)
		w := do(r, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
