package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/http/handlers/common"
	"github.com/ignatzorin/orderdesk-backend/internal/http/response"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
)

type InvoiceUseCases interface {
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, actor models.Actor, limit, offset int) ([]models.Invoice, error)
}

// InvoiceHandler обслуживает маршруты счетов.
type InvoiceHandler struct {
	invoices InvoiceUseCases
}

func NewInvoiceHandler(invoices InvoiceUseCases) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// ListInvoices обрабатывает GET /api/invoices.
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	invoices, err := h.invoices.List(c.Request.Context(), actor, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, invoices, len(invoices), limit, offset)
}

// GetInvoice обрабатывает GET /api/invoices/:id.
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	actor, ok := common.RequireActor(c)
	if !ok {
		return
	}
	id, ok := common.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoices.Get(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, invoice)
}
