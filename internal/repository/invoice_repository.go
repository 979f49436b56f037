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

var ErrInvoiceNotFound = errors.New("invoice not found")

// InvoiceRepository читает выставленные счета. Счета создаются только в SettlementRepository.
type InvoiceRepository struct {
	db *sqlx.DB
}

func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// GetByID возвращает счёт по идентификатору.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return common.GetByID[models.Invoice](ctx, r.db, "invoices", id, ErrInvoiceNotFound)
}

// List возвращает счета участника (клиента или фрилансера); nil participant - все счета.
func (r *InvoiceRepository) List(ctx context.Context, participant *uuid.UUID, limit, offset int) ([]models.Invoice, error) {
	var (
		invoices []models.Invoice
		err      error
	)
	if participant == nil {
		err = r.db.SelectContext(ctx, &invoices,
			`SELECT * FROM invoices ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &invoices, `
			SELECT * FROM invoices
			WHERE client_id = $1 OR freelancer_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`, *participant, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("invoice repository: list %w", err)
	}
	return invoices, nil
}
