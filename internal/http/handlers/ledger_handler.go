package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/orderdesk-backend/internal/http/response"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

type BalanceReconciler interface {
	ReconcileAll(ctx context.Context) (service.ReconcileReport, error)
}

// LedgerHandler - административный пересчёт балансов фрилансеров.
type LedgerHandler struct {
	ledger BalanceReconciler
}

func NewLedgerHandler(ledger BalanceReconciler) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Reconcile обрабатывает POST /api/admin/balances/reconcile.
func (h *LedgerHandler) Reconcile(c *gin.Context) {
	report, err := h.ledger.ReconcileAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}
