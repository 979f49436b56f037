package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/orderdesk-backend/internal/domain/valueobject"
	"github.com/ignatzorin/orderdesk-backend/internal/logger"
	"github.com/ignatzorin/orderdesk-backend/internal/mail"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
	"github.com/ignatzorin/orderdesk-backend/internal/repository"
	"github.com/ignatzorin/orderdesk-backend/internal/validation"
)

// AttachmentRetention - срок хранения вложений после завершения заказа.
const AttachmentRetention = 7 * 24 * time.Hour

// JobRepository описывает взаимодействие сервиса с хранилищем заказов и ставок.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, filter repository.JobFilter) ([]models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, change repository.StatusChange) (*models.Job, error)
	SetApproval(ctx context.Context, id uuid.UUID, approved bool) (*models.Job, error)
	AssignFreelancer(ctx context.Context, jobID, freelancerID uuid.UUID) (*models.Job, error)
	CreateBid(ctx context.Context, bid *models.Bid) error
	ListBids(ctx context.Context, jobID uuid.UUID) ([]models.Bid, error)
	ListAttachments(ctx context.Context, jobID uuid.UUID) ([]models.JobAttachment, error)
	ScheduleAttachmentDeletion(ctx context.Context, jobID uuid.UUID, at time.Time) (int64, error)
}

// UserRepository описывает чтение пользователей.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error)
}

// CreateJobInput - данные нового заказа.
type CreateJobInput struct {
	OrderNumber       string
	Title             string
	Description       string
	Amount            float64
	UrgencyMultiplier float64
	Deadline          time.Time
}

// StatusUpdate - новый статус заказа и необязательные флаги.
type StatusUpdate struct {
	Status            string
	RevisionRequested *bool
	RevisionNotes     *string
	ClientApproved    *bool
}

// PlaceBidInput - ставка фрилансера.
type PlaceBidInput struct {
	Amount  float64
	Message string
}

// JobService реализует жизненный цикл заказа и распределение ставок.
type JobService struct {
	jobs    JobRepository
	users   UserRepository
	notify  announcer
	baseURL string
	now     func() time.Time
}

// NewJobService создаёт сервис заказов.
func NewJobService(jobs JobRepository, users UserRepository, notifier Notifier, mailer mail.Mailer, baseURL string) *JobService {
	return &JobService{
		jobs:    jobs,
		users:   users,
		notify:  announcer{users: users, notifier: notifier, mailer: mailer},
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// CreateJob создаёт заказ клиента в статусе pending.
func (s *JobService) CreateJob(ctx context.Context, actor models.Actor, in CreateJobInput) (*models.Job, error) {
	if actor.Role != models.RoleClient && !actor.IsAdmin() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "создавать заказы может только клиент")
	}

	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	in.Title = strings.TrimSpace(in.Title)
	if err := firstInvalid(
		validation.ValidateOrderNumber(in.OrderNumber),
		validation.ValidateJobTitle(in.Title),
		validation.ValidateJobDescription(in.Description),
		validation.ValidateAmount("сумма заказа", in.Amount),
		validation.ValidateUrgencyMultiplier(in.UrgencyMultiplier),
	); err != nil {
		return nil, err
	}
	if in.Deadline.IsZero() {
		return nil, apperror.New(apperror.ErrCodeValidation, "дедлайн обязателен")
	}
	if in.UrgencyMultiplier <= 0 {
		in.UrgencyMultiplier = 1
	}

	job := &models.Job{
		DisplayID:         displayID(in.OrderNumber),
		OrderNumber:       in.OrderNumber,
		ClientID:          actor.UserID,
		Title:             in.Title,
		Description:       strings.TrimSpace(in.Description),
		Amount:            in.Amount,
		UrgencyMultiplier: in.UrgencyMultiplier,
		CalculatedPrice:   valueobject.RoundPrice(in.Amount, in.UrgencyMultiplier),
		Deadline:          in.Deadline,
		Status:            string(valueobject.JobStatusPending),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrderNumber) {
			return nil, apperror.ErrDuplicateOrderNumber
		}
		return nil, apperror.Internal(err)
	}
	return job, nil
}

// GetJob возвращает заказ, если вызывающий его участник или администратор.
func (s *JobService) GetJob(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Job, error) {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, job) {
		return nil, apperror.ErrForbidden
	}
	return job, nil
}

// ListJobs возвращает заказы в зависимости от роли: клиенту - свои,
// фрилансеру - назначенные ему, администратору - все.
func (s *JobService) ListJobs(ctx context.Context, actor models.Actor, status string, limit, offset int) ([]models.Job, error) {
	if status != "" {
		if _, err := valueobject.NewJobStatus(status); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	filter := repository.JobFilter{Status: status, Limit: limit, Offset: offset}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleFreelancer:
		filter.FreelancerID = &actor.UserID
	default:
		filter.ClientID = &actor.UserID
	}

	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return jobs, nil
}

// SetStatus переводит заказ в новый статус.
// Завершённый или отменённый заказ нельзя перевести в другой статус.
func (s *JobService) SetStatus(ctx context.Context, actor models.Actor, id uuid.UUID, upd StatusUpdate) (*models.Job, error) {
	next, err := valueobject.NewJobStatus(upd.Status)
	if err != nil {
		return nil, err
	}
	if err := firstInvalid(validation.ValidateRevisionNotes(upd.RevisionNotes)); err != nil {
		return nil, err
	}

	current, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, current) {
		return nil, apperror.ErrForbidden
	}

	prev := valueobject.JobStatus(current.Status)
	if prev.IsTerminal() && prev != next {
		return nil, apperror.ErrJobClosed
	}
	if next.NeedsAssignee() && current.AssignedFreelancerID == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "исполнитель не назначен, используйте назначение фрилансера")
	}

	job, err := s.jobs.UpdateStatus(ctx, id, repository.StatusChange{
		Status:            string(next),
		RevisionRequested: upd.RevisionRequested,
		RevisionNotes:     upd.RevisionNotes,
		ClientApproved:    upd.ClientApproved,
	})
	if err != nil {
		return nil, mapJobError(err)
	}

	if next == valueobject.JobStatusCompleted && prev != valueobject.JobStatusCompleted {
		s.scheduleAttachmentRetention(ctx, job.ID)
	}

	if next != prev {
		s.notify.jobEvent(ctx, job, models.NotificationKindStatus, "Job status updated", valueobject.StatusChangeMessage(prev, next))
	}

	if next == valueobject.JobStatusDelivered && prev != valueobject.JobStatusDelivered {
		details := s.jobDetails(job)
		s.notify.email(ctx, job.ClientID, job.ID, func() (mail.Email, error) {
			return mail.WorkDelivered(details)
		})
	}

	return job, nil
}

// Approve фиксирует решение администратора по заказу.
// true переводит pending заказ в approved, false отменяет заказ.
func (s *JobService) Approve(ctx context.Context, actor models.Actor, id uuid.UUID, approved bool) (*models.Job, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	current, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.SetApproval(ctx, id, approved)
	if err != nil {
		return nil, mapJobError(err)
	}

	prev := valueobject.JobStatus(current.Status)
	next := valueobject.JobStatus(job.Status)
	if next != prev {
		s.notify.jobEvent(ctx, job, models.NotificationKindStatus, "Job status updated", valueobject.StatusChangeMessage(prev, next))
	}
	return job, nil
}

// Assign назначает фрилансера на заказ: принимает его ставку, отклоняет
// остальные и переводит заказ в in_progress.
func (s *JobService) Assign(ctx context.Context, actor models.Actor, jobID, freelancerID uuid.UUID) (*models.Job, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	freelancer, err := s.users.GetByID(ctx, freelancerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrFreelancerNotFound
		}
		return nil, apperror.Internal(err)
	}
	if freelancer.Role != models.RoleFreelancer {
		return nil, apperror.New(apperror.ErrCodeValidation, "пользователь не является фрилансером")
	}

	current, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.AssignFreelancer(ctx, jobID, freelancerID)
	if err != nil {
		return nil, mapJobError(err)
	}

	details := s.jobDetails(job)
	s.notify.email(ctx, freelancerID, job.ID, func() (mail.Email, error) {
		return mail.JobAssigned(details)
	})

	prev := valueobject.JobStatus(current.Status)
	next := valueobject.JobStatus(job.Status)
	if next != prev {
		s.notify.jobEvent(ctx, job, models.NotificationKindStatus, "Job status updated", valueobject.StatusChangeMessage(prev, next))
	}
	return job, nil
}

// PlaceBid сохраняет ставку фрилансера на открытый заказ.
func (s *JobService) PlaceBid(ctx context.Context, actor models.Actor, jobID uuid.UUID, in PlaceBidInput) (*models.Bid, error) {
	if actor.Role != models.RoleFreelancer {
		return nil, apperror.New(apperror.ErrCodeForbidden, "ставки могут делать только фрилансеры")
	}
	if err := firstInvalid(
		validation.ValidateAmount("сумма ставки", in.Amount),
		validation.ValidateBidMessage(in.Message),
	); err != nil {
		return nil, err
	}

	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !valueobject.JobStatus(job.Status).AcceptsBids() {
		return nil, apperror.New(apperror.ErrCodeConflict, "заказ не принимает ставки")
	}

	bid := &models.Bid{
		JobID:        jobID,
		FreelancerID: actor.UserID,
		BidAmount:    in.Amount,
		Message:      strings.TrimSpace(in.Message),
		Status:       models.BidStatusPending,
	}
	if err := s.jobs.CreateBid(ctx, bid); err != nil {
		if errors.Is(err, repository.ErrDuplicateBid) {
			return nil, apperror.ErrDuplicateBid
		}
		return nil, apperror.Internal(err)
	}
	return bid, nil
}

// ListBids возвращает ставки по заказу. Клиент видит ставки своего заказа,
// фрилансер - только свою.
func (s *JobService) ListBids(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.Bid, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	bids, err := s.jobs.ListBids(ctx, jobID)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	switch {
	case actor.IsAdmin(), actor.UserID == job.ClientID:
		return bids, nil
	case actor.Role == models.RoleFreelancer:
		own := make([]models.Bid, 0, 1)
		for _, bid := range bids {
			if bid.FreelancerID == actor.UserID {
				own = append(own, bid)
			}
		}
		return own, nil
	default:
		return nil, apperror.ErrForbidden
	}
}

// ListAttachments возвращает вложения заказа.
func (s *JobService) ListAttachments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.JobAttachment, error) {
	if _, err := s.GetJob(ctx, actor, jobID); err != nil {
		return nil, err
	}

	attachments, err := s.jobs.ListAttachments(ctx, jobID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return attachments, nil
}

func (s *JobService) scheduleAttachmentRetention(ctx context.Context, jobID uuid.UUID) {
	scheduleAttachmentRetention(ctx, s.jobs, jobID, s.now())
}

func (s *JobService) jobDetails(job *models.Job) mail.JobDetails {
	return jobDetails(job, s.baseURL)
}

func (s *JobService) loadJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, mapJobError(err)
	}
	return job, nil
}

type attachmentScheduler interface {
	ScheduleAttachmentDeletion(ctx context.Context, jobID uuid.UUID, at time.Time) (int64, error)
}

// scheduleAttachmentRetention помечает вложения заказа к удалению через AttachmentRetention.
func scheduleAttachmentRetention(ctx context.Context, repo attachmentScheduler, jobID uuid.UUID, now time.Time) {
	at := now.Add(AttachmentRetention)
	n, err := repo.ScheduleAttachmentDeletion(ctx, jobID, at)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"job_id": jobID,
			"error":  err,
		}).Warn("не удалось запланировать удаление вложений")
		return
	}
	if n > 0 {
		logger.Log.WithFields(logrus.Fields{
			"job_id":       jobID,
			"attachments":  n,
			"delete_after": at,
		}).Info("вложения заказа запланированы к удалению")
	}
}

func jobDetails(job *models.Job, baseURL string) mail.JobDetails {
	return mail.JobDetails{
		Title:     job.Title,
		DisplayID: job.DisplayID,
		Amount:    job.Amount,
		Deadline:  job.Deadline,
		Link:      fmt.Sprintf("%s/jobs/%s", baseURL, job.ID),
	}
}

func displayID(orderNumber string) string {
	return "JOB-" + strings.ToUpper(orderNumber)
}

func canView(actor models.Actor, job *models.Job) bool {
	if actor.IsAdmin() || actor.UserID == job.ClientID {
		return true
	}
	return job.AssignedFreelancerID != nil && *job.AssignedFreelancerID == actor.UserID
}

// firstInvalid превращает первую ошибку валидации в VALIDATION_ERROR.
func firstInvalid(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return apperror.New(apperror.ErrCodeValidation, err.Error())
		}
	}
	return nil
}

func mapJobError(err error) error {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		return apperror.ErrJobNotFound
	case errors.Is(err, repository.ErrJobClosed):
		return apperror.ErrJobClosed
	default:
		return apperror.Internal(err)
	}
}
