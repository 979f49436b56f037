package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/models"
)

// PaymentCompletion - данные, которые пишутся в платёж при успешной оплате.
type PaymentCompletion struct {
	ReceiptNumber    *string
	ConfirmedByAdmin bool
	ConfirmedAt      time.Time
}

// SettlementTx - операции, выполняемые внутри одной транзакции расчёта.
//
// CompletePayment и FailPayment - условные записи pending -> completed/failed.
// Они возвращают false, если платёж уже не pending; всё остальное в расчёте
// выполняется только при true.
//
// LockFreelancer держит строку пользователя до конца транзакции; пересчёт
// баланса вызывает его до чтения заказов.
type SettlementTx interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	CompletePayment(ctx context.Context, id uuid.UUID, c PaymentCompletion) (bool, error)
	FailPayment(ctx context.Context, id uuid.UUID, reason string, byAdmin bool) (bool, error)
	MarkJobPaid(ctx context.Context, jobID uuid.UUID) error
	LockFreelancer(ctx context.Context, freelancerID uuid.UUID) error
	CreditFreelancer(ctx context.Context, freelancerID uuid.UUID, share float64) error
	QualifyingJobAmounts(ctx context.Context, freelancerID uuid.UUID) ([]float64, error)
	SetBalance(ctx context.Context, freelancerID uuid.UUID, balance float64) error
	CountInvoicesOn(ctx context.Context, day time.Time) (int, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
}

// SettlementStore открывает транзакцию расчёта. Ошибка fn откатывает транзакцию.
type SettlementStore interface {
	RunInTx(ctx context.Context, fn func(tx SettlementTx) error) error
}
