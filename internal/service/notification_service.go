package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/orderdesk-backend/internal/logger"
	"github.com/ignatzorin/orderdesk-backend/internal/mail"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
	"github.com/ignatzorin/orderdesk-backend/internal/repository"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Notifier создаёт уведомление для одного пользователя.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, jobID *uuid.UUID, kind, title, message string) error
}

// NotificationService содержит бизнес-логику работы с уведомлениями.
type NotificationService struct {
	repo NotificationRepository
}

// NewNotificationService создаёт новый сервис уведомлений.
func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// Notify сохраняет уведомление, которое клиент заберёт опросом.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, jobID *uuid.UUID, kind, title, message string) error {
	notification := &models.Notification{
		UserID:  userID,
		JobID:   jobID,
		Kind:    kind,
		Title:   title,
		Message: message,
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("notification service: create %w", err)
	}
	return nil
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAsRead отмечает уведомление как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "уведомление не найдено")
		}
		return err
	}

	if notification.UserID != userID {
		return apperror.New(apperror.ErrCodeForbidden, "у вас нет прав на это уведомление")
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// announcer доставляет уведомления и письма после основного изменения состояния.
// Любая ошибка доставки только логируется.
type announcer struct {
	users    UserRepository
	notifier Notifier
	mailer   mail.Mailer
}

// jobEvent уведомляет клиента, исполнителя и всех администраторов.
// Ошибка по одному получателю не мешает остальным.
func (f announcer) jobEvent(ctx context.Context, job *models.Job, kind, title, message string) {
	recipients := []uuid.UUID{job.ClientID}
	if job.AssignedFreelancerID != nil {
		recipients = append(recipients, *job.AssignedFreelancerID)
	}

	admins, err := f.users.ListIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"job_id": job.ID,
			"error":  err,
		}).Warn("не удалось получить список администраторов для уведомления")
	}
	recipients = append(recipients, admins...)

	seen := make(map[uuid.UUID]struct{}, len(recipients))
	jobID := job.ID
	for _, userID := range recipients {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		if err := f.notifier.Notify(ctx, userID, &jobID, kind, title, message); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"job_id":  job.ID,
				"user_id": userID,
				"error":   err,
			}).Warn("не удалось создать уведомление")
		}
	}
}

// admins уведомляет только администраторов.
func (f announcer) admins(ctx context.Context, jobID uuid.UUID, kind, title, message string) {
	ids, err := f.users.ListIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"job_id": jobID,
			"error":  err,
		}).Warn("не удалось получить список администраторов для уведомления")
		return
	}
	for _, id := range ids {
		f.notifyOne(ctx, id, jobID, kind, title, message)
	}
}

// notifyOne уведомляет одного пользователя, ошибка только логируется.
func (f announcer) notifyOne(ctx context.Context, userID uuid.UUID, jobID uuid.UUID, kind, title, message string) {
	if err := f.notifier.Notify(ctx, userID, &jobID, kind, title, message); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"job_id":  jobID,
			"user_id": userID,
			"error":   err,
		}).Warn("не удалось создать уведомление")
	}
}

// email отправляет письмо пользователю по его адресу из профиля.
func (f announcer) email(ctx context.Context, userID, jobID uuid.UUID, build func() (mail.Email, error)) {
	fields := logrus.Fields{"job_id": jobID, "user_id": userID}

	user, err := f.users.GetByID(ctx, userID)
	if err != nil {
		logger.Log.WithFields(fields).WithError(err).Warn("не удалось получить адресата письма")
		return
	}

	msg, err := build()
	if err != nil {
		logger.Log.WithFields(fields).WithError(err).Error("не удалось сформировать письмо")
		return
	}

	if err := f.mailer.Send(ctx, user.Email, msg); err != nil {
		logger.Log.WithFields(fields).WithError(err).Warn("не удалось отправить письмо")
	}
}
