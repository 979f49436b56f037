package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/http/handlers/common"
	"github.com/ignatzorin/orderdesk-backend/internal/http/response"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

// PaymentUseCases - чтение платежей и ручное подтверждение.
type PaymentUseCases interface {
	GetPayment(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Payment, error)
	ListPayments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.Payment, error)
	ConfirmManual(ctx context.Context, actor models.Actor, paymentID uuid.UUID, confirmed bool) (*service.ConfirmResult, error)
}

// PaymentHandler обслуживает маршруты платежей.
type PaymentHandler struct {
	payments PaymentUseCases
}

// NewPaymentHandler создаёт новый хэндлер.
func NewPaymentHandler(payments PaymentUseCases) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type confirmRequest struct {
	Confirmed *bool `json:"confirmed" binding:"required"`
}

// GetPayment обрабатывает GET /api/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, payment)
}

// ListJobPayments обрабатывает GET /api/jobs/:id/payments.
func (h *PaymentHandler) ListJobPayments(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	jobID, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), actor, jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, payments)
}

// Confirm обрабатывает PATCH /api/payments/:id/confirm.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req confirmRequest
	if !common.BindJSON(c, &req) {
		return
	}

	res, err := h.payments.ConfirmManual(c.Request.Context(), actor, id, *req.Confirmed)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
