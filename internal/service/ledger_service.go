package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domainrepo "github.com/ignatzorin/orderdesk-backend/internal/domain/repository"
	"github.com/ignatzorin/orderdesk-backend/internal/domain/valueobject"
	"github.com/ignatzorin/orderdesk-backend/internal/logger"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
	"github.com/ignatzorin/orderdesk-backend/internal/repository"
)

// ReconcileReport - итог пакетного пересчёта балансов.
type ReconcileReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// LedgerService пересчитывает балансы фрилансеров по оплаченным завершённым заказам.
// Пересчёт - источник истины: он перезаписывает любые накопленные начисления.
type LedgerService struct {
	users UserRepository
	store domainrepo.SettlementStore
}

// NewLedgerService создаёт сервис балансов.
func NewLedgerService(users UserRepository, store domainrepo.SettlementStore) *LedgerService {
	return &LedgerService{users: users, store: store}
}

// RecomputeFreelancer пересчитывает и сохраняет баланс одного фрилансера.
func (s *LedgerService) RecomputeFreelancer(ctx context.Context, freelancerID uuid.UUID) (float64, error) {
	user, err := s.users.GetByID(ctx, freelancerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, apperror.ErrFreelancerNotFound
		}
		return 0, apperror.Internal(err)
	}
	if user.Role != models.RoleFreelancer {
		return 0, apperror.New(apperror.ErrCodeValidation, "пользователь не является фрилансером")
	}

	var balance float64
	err = s.store.RunInTx(ctx, func(tx domainrepo.SettlementTx) error {
		// Строка пользователя держится до записи баланса.
		if err := tx.LockFreelancer(ctx, freelancerID); err != nil {
			return err
		}
		amounts, err := tx.QualifyingJobAmounts(ctx, freelancerID)
		if err != nil {
			return err
		}
		balance = valueobject.RecomputeBalance(amounts)
		return tx.SetBalance(ctx, freelancerID, balance)
	})
	if err != nil {
		return 0, apperror.Internal(err)
	}
	return balance, nil
}

// ReconcileAll пересчитывает балансы всех фрилансеров. Ошибка по одному
// фрилансеру логируется и не останавливает остальных.
func (s *LedgerService) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	ids, err := s.users.ListIDsByRole(ctx, models.RoleFreelancer)
	if err != nil {
		return report, apperror.Internal(err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		balance, err := s.RecomputeFreelancer(ctx, id)
		if err != nil {
			report.Failed++
			logger.Log.WithFields(logrus.Fields{
				"user_id": id,
				"error":   err,
			}).Error("не удалось пересчитать баланс фрилансера")
			continue
		}
		report.Processed++
		logger.Log.WithFields(logrus.Fields{
			"user_id": id,
			"balance": balance,
		}).Debug("баланс пересчитан")
	}

	logger.Log.WithFields(logrus.Fields{
		"processed": report.Processed,
		"failed":    report.Failed,
	}).Info("пересчёт балансов завершён")
	return report, nil
}
