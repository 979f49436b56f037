// Package scheduler запускает периодические задачи: пересчёт балансов
// фрилансеров и удаление вложений с истёкшим сроком хранения.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/orderdesk-backend/internal/goroutine"
	"github.com/ignatzorin/orderdesk-backend/internal/logger"
	"github.com/ignatzorin/orderdesk-backend/internal/service"
)

const defaultJobTimeout = 10 * time.Minute

// Reconciler пересчитывает балансы всех фрилансеров.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (service.ReconcileReport, error)
}

// AttachmentPurger удаляет вложения, срок хранения которых истёк.
type AttachmentPurger interface {
	PurgeExpiredAttachments(ctx context.Context, now time.Time) (int64, error)
}

// Config - расписания в формате cron с секундами. Пустое расписание отключает задачу.
type Config struct {
	ReconcileSchedule string
	PurgeSchedule     string
	JobTimeout        time.Duration
}

type Scheduler struct {
	cron        *cron.Cron
	ledger      Reconciler
	attachments AttachmentPurger
	timeout     time.Duration
	now         func() time.Time
}

// New регистрирует задачи, но не запускает их.
func New(cfg Config, ledger Reconciler, attachments AttachmentPurger) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		ledger:      ledger,
		attachments: attachments,
		timeout:     cfg.JobTimeout,
		now:         time.Now,
	}
	if s.timeout <= 0 {
		s.timeout = defaultJobTimeout
	}

	if cfg.ReconcileSchedule != "" {
		if err := s.cron.AddFunc(cfg.ReconcileSchedule, s.ReconcileBalances); err != nil {
			return nil, fmt.Errorf("scheduler: расписание пересчёта балансов %q: %w", cfg.ReconcileSchedule, err)
		}
	}
	if cfg.PurgeSchedule != "" {
		if err := s.cron.AddFunc(cfg.PurgeSchedule, s.PurgeAttachments); err != nil {
			return nil, fmt.Errorf("scheduler: расписание удаления вложений %q: %w", cfg.PurgeSchedule, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Log.WithField("jobs", len(s.cron.Entries())).Info("планировщик запущен")
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// ReconcileBalances - задача пересчёта балансов.
func (s *Scheduler) ReconcileBalances() {
	defer goroutine.Recover("reconcile balances")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	report, err := s.ledger.ReconcileAll(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("плановый пересчёт балансов не выполнен")
		return
	}
	logger.Log.WithFields(logrus.Fields{
		"processed": report.Processed,
		"failed":    report.Failed,
		"took":      time.Since(start).String(),
	}).Info("плановый пересчёт балансов выполнен")
}

// PurgeAttachments - задача удаления просроченных вложений.
func (s *Scheduler) PurgeAttachments() {
	defer goroutine.Recover("purge attachments")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.attachments.PurgeExpiredAttachments(ctx, s.now())
	if err != nil {
		logger.Log.WithError(err).Error("не удалось удалить просроченные вложения")
		return
	}
	if n > 0 {
		logger.Log.WithField("deleted", n).Info("просроченные вложения удалены")
	}
}
