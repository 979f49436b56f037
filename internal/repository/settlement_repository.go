package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainrepo "github.com/ignatzorin/orderdesk-backend/internal/domain/repository"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/repository/common"
)

// SettlementRepository выполняет расчёт по платежу в одной транзакции Postgres.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository создаёт экземпляр репозитория.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// RunInTx открывает транзакцию и передаёт её в fn. Ошибка fn откатывает все записи.
func (r *SettlementRepository) RunInTx(ctx context.Context, fn func(tx domainrepo.SettlementTx) error) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&settlementTx{tx: tx})
	})
}

type settlementTx struct {
	tx *sqlx.Tx
}

func (s *settlementTx) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.tx.GetContext(ctx, &payment, `SELECT * FROM payments WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("settlement: get payment %w", err)
	}
	return &payment, nil
}

// GetJob блокирует строку заказа до конца расчёта, чтобы смена статуса
// не проскочила между чтением и MarkJobPaid.
func (s *settlementTx) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := s.tx.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("settlement: get job %w", err)
	}
	return &job, nil
}

// CompletePayment - условный переход pending -> completed.
func (s *settlementTx) CompletePayment(ctx context.Context, id uuid.UUID, c domainrepo.PaymentCompletion) (bool, error) {
	result, err := s.tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'completed',
		    receipt_number = COALESCE($2, receipt_number),
		    confirmed_by_admin = $3,
		    confirmed_at = $4,
		    failure_reason = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, c.ReceiptNumber, c.ConfirmedByAdmin, c.ConfirmedAt)
	if err != nil {
		return false, fmt.Errorf("settlement: complete payment %w", err)
	}
	return swapped(result)
}

// FailPayment - условный переход pending -> failed.
func (s *settlementTx) FailPayment(ctx context.Context, id uuid.UUID, reason string, byAdmin bool) (bool, error) {
	result, err := s.tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, confirmed_by_admin = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, reason, byAdmin)
	if err != nil {
		return false, fmt.Errorf("settlement: fail payment %w", err)
	}
	return swapped(result)
}

// MarkJobPaid завершает заказ; отменённый заказ не меняется и даёт ErrJobClosed.
func (s *settlementTx) MarkJobPaid(ctx context.Context, jobID uuid.UUID) error {
	result, err := s.tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', payment_confirmed = TRUE, updated_at = NOW()
		WHERE id = $1 AND status <> 'cancelled'
	`, jobID)
	if err != nil {
		return fmt.Errorf("settlement: mark job paid %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrJobClosed
	}
	return nil
}

// LockFreelancer берёт блокировку строки пользователя до конца транзакции.
func (s *settlementTx) LockFreelancer(ctx context.Context, freelancerID uuid.UUID) error {
	var one int
	if err := s.tx.GetContext(ctx, &one, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, freelancerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("settlement: lock freelancer %w", err)
	}
	return nil
}

func (s *settlementTx) CreditFreelancer(ctx context.Context, freelancerID uuid.UUID, share float64) error {
	result, err := s.tx.ExecContext(ctx, `
		UPDATE users
		SET balance = balance + $2,
		    earned = earned + $2,
		    total_earnings = total_earnings + $2,
		    completed_jobs = completed_jobs + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, freelancerID, share)
	if err != nil {
		return fmt.Errorf("settlement: credit freelancer %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *settlementTx) QualifyingJobAmounts(ctx context.Context, freelancerID uuid.UUID) ([]float64, error) {
	var amounts []float64
	err := s.tx.SelectContext(ctx, &amounts, `
		SELECT amount FROM jobs
		WHERE assigned_freelancer_id = $1 AND status = 'completed' AND payment_confirmed = TRUE
	`, freelancerID)
	if err != nil {
		return nil, fmt.Errorf("settlement: qualifying jobs %w", err)
	}
	return amounts, nil
}

func (s *settlementTx) SetBalance(ctx context.Context, freelancerID uuid.UUID, balance float64) error {
	if _, err := s.tx.ExecContext(ctx, `UPDATE users SET balance = $2, updated_at = NOW() WHERE id = $1`, freelancerID, balance); err != nil {
		return fmt.Errorf("settlement: set balance %w", err)
	}
	return nil
}

// CountInvoicesOn берёт транзакционную advisory-блокировку на день, чтобы
// параллельные расчёты не получили один и тот же номер счёта.
func (s *settlementTx) CountInvoicesOn(ctx context.Context, day time.Time) (int, error) {
	key, _ := strconv.ParseInt(day.Format("20060102"), 10, 64)
	if _, err := s.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return 0, fmt.Errorf("settlement: lock invoice counter %w", err)
	}

	var count int
	prefix := "INV-" + day.Format("20060102") + "-%"
	if err := s.tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM invoices WHERE invoice_number LIKE $1`, prefix); err != nil {
		return 0, fmt.Errorf("settlement: count invoices %w", err)
	}
	return count, nil
}

func (s *settlementTx) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	query := `
		INSERT INTO invoices (job_id, payment_id, client_id, freelancer_id, invoice_number, amount,
		                      freelancer_amount, admin_commission, status, is_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	err := s.tx.QueryRowxContext(ctx, query,
		inv.JobID, inv.PaymentID, inv.ClientID, inv.FreelancerID, inv.InvoiceNumber, inv.Amount,
		inv.FreelancerAmount, inv.AdminCommission, inv.Status, inv.IsPaid, inv.PaidAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("settlement: create invoice %w", err)
	}
	return nil
}

// swapped сообщает, изменил ли условный UPDATE ровно одну строку.
func swapped(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settlement: rows affected %w", err)
	}
	return n == 1, nil
}
