package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/gateway/card"
	"github.com/ignatzorin/orderdesk-backend/internal/goroutine"
	"github.com/ignatzorin/orderdesk-backend/internal/http/handlers/common"
	"github.com/ignatzorin/orderdesk-backend/internal/http/response"
	"github.com/ignatzorin/orderdesk-backend/internal/logger"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

// maxWebhookBody ограничивает размер тела callback/webhook.
const maxWebhookBody = 1 << 20

// GatewayUseCases - операции с платёжными шлюзами.
type GatewayUseCases interface {
	Initiate(ctx context.Context, actor models.Actor, in service.InitiateInput) (*service.InitiateResult, error)
	QueryMobileMoney(ctx context.Context, actor models.Actor, checkoutRequestID string) (*service.PollResult, error)
	HandleMobileMoneyCallback(ctx context.Context, body []byte)
	VerifyCardPayment(ctx context.Context, actor models.Actor, in service.VerifyCardInput) (*service.PollResult, error)
	HandleCardWebhook(ctx context.Context, body []byte, signature string)
}

// GatewayHandler обслуживает /api/payment-gateway.
type GatewayHandler struct {
	payments GatewayUseCases
}

// NewGatewayHandler создаёт новый хэндлер.
func NewGatewayHandler(payments GatewayUseCases) *GatewayHandler {
	return &GatewayHandler{payments: payments}
}

type initiateRequest struct {
	Phone    string    `json:"phone" binding:"required"`
	Amount   float64   `json:"amount" binding:"required"`
	JobID    uuid.UUID `json:"job_id" binding:"required"`
	ClientID uuid.UUID `json:"client_id"`
}

type queryRequest struct {
	CheckoutRequestID string `json:"checkout_request_id" binding:"required"`
}

type verifyCardRequest struct {
	Reference string    `json:"reference" binding:"required"`
	JobID     uuid.UUID `json:"job_id" binding:"required"`
	ClientID  uuid.UUID `json:"client_id"`
}

// Initiate обрабатывает POST /api/payment-gateway/initiate.
func (h *GatewayHandler) Initiate(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	var req initiateRequest
	if !common.BindJSON(c, &req) {
		return
	}

	res, err := h.payments.Initiate(c.Request.Context(), actor, service.InitiateInput{
		Phone:    req.Phone,
		Amount:   req.Amount,
		JobID:    req.JobID,
		ClientID: req.ClientID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Query обрабатывает POST /api/payment-gateway/query.
func (h *GatewayHandler) Query(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	var req queryRequest
	if !common.BindJSON(c, &req) {
		return
	}

	res, err := h.payments.QueryMobileMoney(c.Request.Context(), actor, req.CheckoutRequestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Callback обрабатывает POST /api/payment-gateway/callback.
// Шлюз всегда получает подтверждение, иначе он повторяет доставку.
func (h *GatewayHandler) Callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Log.WithError(err).Warn("не удалось прочитать callback M-Pesa")
	} else {
		func() {
			defer goroutine.Recover("mpesa callback")
			h.payments.HandleMobileMoneyCallback(c.Request.Context(), body)
		}()
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// VerifyCard обрабатывает POST /api/payment-gateway/card/verify.
func (h *GatewayHandler) VerifyCard(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	var req verifyCardRequest
	if !common.BindJSON(c, &req) {
		return
	}

	res, err := h.payments.VerifyCardPayment(c.Request.Context(), actor, service.VerifyCardInput{
		Reference: req.Reference,
		JobID:     req.JobID,
		ClientID:  req.ClientID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// CardWebhook обрабатывает POST /api/payment-gateway/card/webhook.
func (h *GatewayHandler) CardWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Log.WithError(err).Warn("не удалось прочитать webhook карточного шлюза")
	} else {
		func() {
			defer goroutine.Recover("card webhook")
			h.payments.HandleCardWebhook(c.Request.Context(), body, c.GetHeader(card.SignatureHeader))
		}()
	}

	c.Status(http.StatusOK)
}
