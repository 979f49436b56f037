package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/repository/common"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrDuplicateCardRef  = errors.New("payment reference already exists")
	ErrPaymentNotPending = errors.New("payment is not pending")
)

// PaymentRepository хранит попытки оплаты и их корреляционные идентификаторы.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository создаёт экземпляр репозитория.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет платёж в статусе pending.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (job_id, client_id, freelancer_id, amount, payment_method, status, phone, reference)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
		RETURNING id, status, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		p.JobID, p.ClientID, p.FreelancerID, p.Amount, p.PaymentMethod, p.Phone, p.Reference,
	).Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicateCardRef
		}
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// GetByID возвращает платёж по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.db, "payments", id, ErrPaymentNotFound)
}

// GetByCheckoutRequestID ищет платёж по идентификатору STK push.
func (r *PaymentRepository) GetByCheckoutRequestID(ctx context.Context, checkoutID string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "checkout_request_id", checkoutID, ErrPaymentNotFound)
}

// GetByReference ищет карточный платёж по reference шлюза.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "reference", reference, ErrPaymentNotFound)
}

// SetGatewayRefs сохраняет корреляционные идентификаторы после успешного push.
func (r *PaymentRepository) SetGatewayRefs(ctx context.Context, id uuid.UUID, merchantRequestID, checkoutRequestID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET merchant_request_id = $2, checkout_request_id = $3, updated_at = NOW()
		WHERE id = $1
	`, id, merchantRequestID, checkoutRequestID)
	if err != nil {
		return fmt.Errorf("payment repository: set gateway refs %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkInitiationFailed переводит pending платёж в failed, если шлюз отказал в push.
func (r *PaymentRepository) MarkInitiationFailed(ctx context.Context, id uuid.UUID, reason string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, reason)
	if err != nil {
		return fmt.Errorf("payment repository: mark initiation failed %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrPaymentNotPending
	}
	return nil
}

// ListByJob возвращает платежи по заказу.
func (r *PaymentRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, `SELECT * FROM payments WHERE job_id = $1 ORDER BY created_at DESC`, jobID); err != nil {
		return nil, fmt.Errorf("payment repository: list by job %w", err)
	}
	return payments, nil
}
