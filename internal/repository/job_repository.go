package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/repository/common"
)

// Ошибки уровня репозитория.
var (
	ErrJobNotFound          = errors.New("job not found")
	ErrJobClosed            = errors.New("job is completed or cancelled")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	ErrDuplicateBid         = errors.New("bid already exists")
)

// JobRepository отвечает за работу с заказами и ставками.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository создаёт новый экземпляр.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// JobFilter ограничивает выборку заказов.
type JobFilter struct {
	ClientID     *uuid.UUID
	FreelancerID *uuid.UUID
	Status       string
	Limit        int
	Offset       int
}

// StatusChange - новое значение статуса и необязательные флаги.
type StatusChange struct {
	Status            string
	RevisionRequested *bool
	RevisionNotes     *string
	ClientApproved    *bool
}

// Create сохраняет новый заказ.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (display_id, order_number, client_id, title, description, amount,
		                  urgency_multiplier, calculated_price, deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		job.DisplayID,
		job.OrderNumber,
		job.ClientID,
		job.Title,
		job.Description,
		job.Amount,
		job.UrgencyMultiplier,
		job.CalculatedPrice,
		job.Deadline,
		job.Status,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("job repository: create %w", err)
	}
	return nil
}

// GetByID возвращает заказ по идентификатору.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return common.GetByID[models.Job](ctx, r.db, "jobs", id, ErrJobNotFound)
}

// List возвращает заказы по фильтру, новые первыми.
func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]models.Job, error) {
	query := `SELECT * FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.ClientID != nil {
		query += fmt.Sprintf(" AND client_id = $%d", argIndex)
		args = append(args, *filter.ClientID)
		argIndex++
	}
	if filter.FreelancerID != nil {
		query += fmt.Sprintf(" AND assigned_freelancer_id = $%d", argIndex)
		args = append(args, *filter.FreelancerID)
		argIndex++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("job repository: list %w", err)
	}
	return jobs, nil
}

// UpdateStatus меняет статус и флаги заказа.
// Завершённый или отменённый заказ можно обновить только тем же статусом.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2,
		    revision_requested = COALESCE($3, revision_requested),
		    revision_notes = COALESCE($4, revision_notes),
		    client_approved = COALESCE($5, client_approved),
		    updated_at = NOW()
		WHERE id = $1
		  AND (status NOT IN ('completed', 'cancelled') OR status = $2)
		RETURNING *
	`

	var job models.Job
	err := r.db.QueryRowxContext(ctx, query, id, change.Status,
		change.RevisionRequested, change.RevisionNotes, change.ClientApproved).StructScan(&job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.closedOrMissing(ctx, id)
		}
		return nil, fmt.Errorf("job repository: update status %w", err)
	}
	return &job, nil
}

// SetApproval применяет решение администратора одним запросом:
// одобрение переводит pending в approved, отказ отменяет заказ (кроме completed).
func (r *JobRepository) SetApproval(ctx context.Context, id uuid.UUID, approved bool) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET admin_approved = $2,
		    status = CASE
		        WHEN $2 AND status = 'pending' THEN 'approved'
		        WHEN NOT $2 THEN 'cancelled'
		        ELSE status
		    END,
		    updated_at = NOW()
		WHERE id = $1
		  AND ($2 OR status <> 'completed')
		RETURNING *
	`

	var job models.Job
	if err := r.db.QueryRowxContext(ctx, query, id, approved).StructScan(&job); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.closedOrMissing(ctx, id)
		}
		return nil, fmt.Errorf("job repository: set approval %w", err)
	}
	return &job, nil
}

// AssignFreelancer в одной транзакции отклоняет чужие ставки по заказу,
// принимает ставку фрилансера и переводит заказ в in_progress.
// Отсутствие ставки фрилансера не мешает назначению.
func (r *JobRepository) AssignFreelancer(ctx context.Context, jobID, freelancerID uuid.UUID) (*models.Job, error) {
	var job models.Job

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var status string
		if err := tx.GetContext(ctx, &status, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrJobNotFound
			}
			return fmt.Errorf("lock job %w", err)
		}
		if status == "completed" || status == "cancelled" {
			return ErrJobClosed
		}

		// Сначала снимаем прежнюю принятую ставку: индекс idx_bids_one_accepted
		// проверяется построчно.
		if _, err := tx.ExecContext(ctx, `
			UPDATE bids SET status = 'rejected', updated_at = NOW()
			WHERE job_id = $1 AND freelancer_id <> $2
		`, jobID, freelancerID); err != nil {
			return fmt.Errorf("reject bids %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE bids SET status = 'accepted', updated_at = NOW()
			WHERE job_id = $1 AND freelancer_id = $2
		`, jobID, freelancerID); err != nil {
			return fmt.Errorf("accept bid %w", err)
		}

		err := tx.QueryRowxContext(ctx, `
			UPDATE jobs
			SET assigned_freelancer_id = $2, status = 'in_progress', updated_at = NOW()
			WHERE id = $1
			RETURNING *
		`, jobID, freelancerID).StructScan(&job)
		if err != nil {
			return fmt.Errorf("assign job %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("job repository: assign freelancer %w", err)
	}
	return &job, nil
}

// CreateBid сохраняет ставку; повторная ставка того же фрилансера даёт ErrDuplicateBid.
func (r *JobRepository) CreateBid(ctx context.Context, bid *models.Bid) error {
	query := `
		INSERT INTO bids (job_id, freelancer_id, bid_amount, message, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		bid.JobID, bid.FreelancerID, bid.BidAmount, bid.Message, bid.Status,
	).Scan(&bid.ID, &bid.CreatedAt, &bid.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicateBid
		}
		return fmt.Errorf("job repository: create bid %w", err)
	}
	return nil
}

// ListBids возвращает ставки по заказу.
func (r *JobRepository) ListBids(ctx context.Context, jobID uuid.UUID) ([]models.Bid, error) {
	var bids []models.Bid
	if err := r.db.SelectContext(ctx, &bids, `SELECT * FROM bids WHERE job_id = $1 ORDER BY created_at ASC`, jobID); err != nil {
		return nil, fmt.Errorf("job repository: list bids %w", err)
	}
	return bids, nil
}

// ListAttachments возвращает вложения заказа.
func (r *JobRepository) ListAttachments(ctx context.Context, jobID uuid.UUID) ([]models.JobAttachment, error) {
	var attachments []models.JobAttachment
	if err := r.db.SelectContext(ctx, &attachments, `SELECT * FROM job_attachments WHERE job_id = $1 ORDER BY created_at ASC`, jobID); err != nil {
		return nil, fmt.Errorf("job repository: list attachments %w", err)
	}
	return attachments, nil
}

// ScheduleAttachmentDeletion помечает все вложения заказа к удалению в момент at.
func (r *JobRepository) ScheduleAttachmentDeletion(ctx context.Context, jobID uuid.UUID, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE job_attachments SET delete_after = $2 WHERE job_id = $1`, jobID, at)
	if err != nil {
		return 0, fmt.Errorf("job repository: schedule attachment deletion %w", err)
	}
	return result.RowsAffected()
}

// PurgeExpiredAttachments удаляет вложения, срок хранения которых истёк.
func (r *JobRepository) PurgeExpiredAttachments(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM job_attachments WHERE delete_after IS NOT NULL AND delete_after <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("job repository: purge attachments %w", err)
	}
	return result.RowsAffected()
}

// closedOrMissing различает отсутствующий и закрытый заказ после условного UPDATE.
func (r *JobRepository) closedOrMissing(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("job repository: check job %w", err)
	}
	if !exists {
		return ErrJobNotFound
	}
	return ErrJobClosed
}
