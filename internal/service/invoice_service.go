package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
	"github.com/ignatzorin/orderdesk-backend/internal/repository"
)

// InvoiceRepository описывает чтение счетов.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, participant *uuid.UUID, limit, offset int) ([]models.Invoice, error)
}

// InvoiceService отдаёт счета участникам заказа.
type InvoiceService struct {
	repo InvoiceRepository
}

func NewInvoiceService(repo InvoiceRepository) *InvoiceService {
	return &InvoiceService{repo: repo}
}

// Get возвращает счёт клиенту, фрилансеру или администратору.
func (s *InvoiceService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			return nil, apperror.ErrInvoiceNotFound
		}
		return nil, apperror.Internal(err)
	}

	if !actor.IsAdmin() && actor.UserID != invoice.ClientID && actor.UserID != invoice.FreelancerID {
		return nil, apperror.ErrForbidden
	}
	return invoice, nil
}

// List возвращает счета пользователя; администратор видит все.
func (s *InvoiceService) List(ctx context.Context, actor models.Actor, limit, offset int) ([]models.Invoice, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var participant *uuid.UUID
	if !actor.IsAdmin() {
		participant = &actor.UserID
	}

	invoices, err := s.repo.List(ctx, participant, limit, offset)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return invoices, nil
}
