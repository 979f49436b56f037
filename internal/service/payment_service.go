package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	domainrepo "github.com/ignatzorin/orderdesk-backend/internal/domain/repository"
	"github.com/ignatzorin/orderdesk-backend/internal/domain/valueobject"
	"github.com/ignatzorin/orderdesk-backend/internal/gateway"
	"github.com/ignatzorin/orderdesk-backend/internal/gateway/mpesa"
	"github.com/ignatzorin/orderdesk-backend/internal/logger"
	"github.com/ignatzorin/orderdesk-backend/internal/mail"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
	"github.com/ignatzorin/orderdesk-backend/internal/repository"
)

// PaymentRepository описывает взаимодействие сервиса с хранилищем платежей.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutID string) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	SetGatewayRefs(ctx context.Context, id uuid.UUID, merchantRequestID, checkoutRequestID string) error
	MarkInitiationFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Payment, error)
}

// PaymentJobs - операции с заказами, нужные платёжному сервису.
type PaymentJobs interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ScheduleAttachmentDeletion(ctx context.Context, jobID uuid.UUID, at time.Time) (int64, error)
}

// MobileMoneyGateway - шлюз оплаты через STK push.
type MobileMoneyGateway interface {
	Configured() bool
	InitiatePush(ctx context.Context, phone string, amount float64, accountRef, description string) (*gateway.PushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*gateway.PaymentOutcome, error)
	ParseCallback(body []byte) (*gateway.PaymentOutcome, error)
}

// CardGateway - шлюз карточных платежей.
type CardGateway interface {
	Configured() bool
	Verify(ctx context.Context, reference string) (*gateway.PaymentOutcome, error)
	VerifySignature(body []byte, signature string) bool
	ParseWebhook(body []byte) (*gateway.PaymentOutcome, error)
}

// Source - откуда пришёл итог платежа.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceAdmin   Source = "admin"
)

const adminRejectReason = "Payment was not verified by an administrator"

// settleTimeout ограничивает общий для склеенных вызовов расчёт.
const settleTimeout = 30 * time.Second

// ConfirmResult - итог применения исхода к платежу.
// Applied=false значит, что платёж уже был в финальном состоянии и ничего не изменилось.
type ConfirmResult struct {
	Payment *models.Payment `json:"payment"`
	Invoice *models.Invoice `json:"invoice,omitempty"`
	Applied bool            `json:"applied"`
}

// AlreadyFinalized сообщает, что исход был проигнорирован.
func (r *ConfirmResult) AlreadyFinalized() bool {
	return !r.Applied
}

// InitiateInput - параметры STK push.
type InitiateInput struct {
	Phone    string
	Amount   float64
	JobID    uuid.UUID
	ClientID uuid.UUID
}

// InitiateResult - созданный платёж и сообщение шлюза для клиента.
type InitiateResult struct {
	Payment         *models.Payment `json:"payment"`
	CustomerMessage string          `json:"customer_message"`
}

// PollResult - состояние платежа после опроса шлюза.
type PollResult struct {
	Payment *models.Payment `json:"payment"`
	State   gateway.State   `json:"state"`
	Applied bool            `json:"applied"`
}

// VerifyCardInput - параметры проверки карточной транзакции.
type VerifyCardInput struct {
	Reference string
	JobID     uuid.UUID
	ClientID  uuid.UUID
}

// PaymentService принимает исходы платежей от шлюзов и администратора и
// выполняет расчёт по заказу ровно один раз.
type PaymentService struct {
	payments PaymentRepository
	jobs     PaymentJobs
	store    domainrepo.SettlementStore
	mpesa    MobileMoneyGateway
	card     CardGateway
	notify   announcer
	baseURL  string
	group    singleflight.Group
	now      func() time.Time
}

// PaymentDeps - зависимости платёжного сервиса.
type PaymentDeps struct {
	Payments PaymentRepository
	Jobs     PaymentJobs
	Users    UserRepository
	Store    domainrepo.SettlementStore
	Mpesa    MobileMoneyGateway
	Card     CardGateway
	Notifier Notifier
	Mailer   mail.Mailer
	BaseURL  string
}

// NewPaymentService создаёт платёжный сервис.
func NewPaymentService(deps PaymentDeps) *PaymentService {
	return &PaymentService{
		payments: deps.Payments,
		jobs:     deps.Jobs,
		store:    deps.Store,
		mpesa:    deps.Mpesa,
		card:     deps.Card,
		notify:   announcer{users: deps.Users, notifier: deps.Notifier, mailer: deps.Mailer},
		baseURL:  strings.TrimRight(deps.BaseURL, "/"),
		now:      time.Now,
	}
}

// settlement - то, что произошло внутри транзакции и нужно для уведомлений.
type settlement struct {
	result     ConfirmResult
	job        *models.Job
	prevStatus string
	split      valueobject.Settlement
	// refundDue - деньги пришли по отменённому заказу; заказ не трогаем.
	refundDue bool
}

// Confirm применяет исход шлюза или решение администратора к платежу.
//
// Переход pending -> completed/failed выполняется условной записью в БД,
// поэтому повторные и параллельные вызовы не рассчитывают заказ дважды.
// Одновременные вызовы внутри процесса дополнительно склеиваются singleflight.
func (s *PaymentService) Confirm(ctx context.Context, paymentID uuid.UUID, outcome *gateway.PaymentOutcome, src Source) (*ConfirmResult, error) {
	if outcome == nil || outcome.Pending() {
		return nil, apperror.New(apperror.ErrCodeValidation, "платёж ещё не завершён")
	}

	key := paymentID.String() + ":" + string(outcome.State)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Отмена запроса первого вызывающего не должна ронять остальных ожидающих.
		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		return s.settle(settleCtx, paymentID, outcome, src)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ConfirmResult), nil
}

func (s *PaymentService) settle(ctx context.Context, paymentID uuid.UUID, outcome *gateway.PaymentOutcome, src Source) (*ConfirmResult, error) {
	var st settlement
	now := s.now().UTC()

	err := s.store.RunInTx(ctx, func(tx domainrepo.SettlementTx) error {
		payment, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		st.result.Payment = payment
		if payment.IsFinal() {
			return nil
		}

		if outcome.Succeeded() {
			return s.applySuccess(ctx, tx, &st, outcome, src, now)
		}
		return s.applyFailure(ctx, tx, &st, outcome, src)
	})
	if err != nil {
		return nil, mapSettlementError(err)
	}

	if st.result.Applied {
		logger.Log.WithFields(logrus.Fields{
			"payment_id": paymentID,
			"job_id":     st.result.Payment.JobID,
			"status":     st.result.Payment.Status,
			"source":     src,
		}).Info("платёж обработан")

		if outcome.Succeeded() {
			s.afterSuccess(ctx, &st)
		} else {
			s.afterFailure(ctx, &st, src)
		}
	}

	return &st.result, nil
}

func (s *PaymentService) applySuccess(ctx context.Context, tx domainrepo.SettlementTx, st *settlement, outcome *gateway.PaymentOutcome, src Source, now time.Time) error {
	payment := st.result.Payment

	var receipt *string
	if outcome.ReceiptNumber != "" {
		r := outcome.ReceiptNumber
		receipt = &r
	}

	ok, err := tx.CompletePayment(ctx, payment.ID, domainrepo.PaymentCompletion{
		ReceiptNumber:    receipt,
		ConfirmedByAdmin: src == SourceAdmin,
		ConfirmedAt:      now,
	})
	if err != nil || !ok {
		return err
	}
	st.result.Applied = true
	payment.Status = models.PaymentStatusCompleted
	payment.ConfirmedByAdmin = src == SourceAdmin
	payment.ConfirmedAt = &now
	payment.FailureReason = nil
	if receipt != nil {
		payment.ReceiptNumber = receipt
	}

	job, err := tx.GetJob(ctx, payment.JobID)
	if err != nil {
		return err
	}
	st.prevStatus = job.Status
	st.job = job

	// Отменённый заказ не возвращается к жизни: платёж фиксируем,
	// начисления и счёта нет, администратор оформляет возврат.
	if valueobject.JobStatus(job.Status) == valueobject.JobStatusCancelled {
		st.refundDue = true
		return nil
	}

	if err := tx.MarkJobPaid(ctx, job.ID); err != nil {
		return err
	}
	job.Status = string(valueobject.JobStatusCompleted)
	job.PaymentConfirmed = true

	if job.AssignedFreelancerID == nil {
		return nil
	}
	freelancerID := *job.AssignedFreelancerID

	st.split = valueobject.Split(job.Amount)
	if err := tx.CreditFreelancer(ctx, freelancerID, st.split.Freelancer); err != nil {
		return err
	}

	// Начисление выше сразу перезаписывается пересчётом по завершённым заказам.
	amounts, err := tx.QualifyingJobAmounts(ctx, freelancerID)
	if err != nil {
		return err
	}
	if err := tx.SetBalance(ctx, freelancerID, valueobject.RecomputeBalance(amounts)); err != nil {
		return err
	}

	issued, err := tx.CountInvoicesOn(ctx, now)
	if err != nil {
		return err
	}
	invoice := &models.Invoice{
		JobID:            job.ID,
		PaymentID:        payment.ID,
		ClientID:         job.ClientID,
		FreelancerID:     freelancerID,
		InvoiceNumber:    valueobject.InvoiceNumber(now, issued),
		Amount:           st.split.Gross,
		FreelancerAmount: st.split.Freelancer,
		AdminCommission:  st.split.Platform,
		Status:           models.InvoiceStatusPaid,
		IsPaid:           true,
		PaidAt:           &now,
	}
	if err := tx.CreateInvoice(ctx, invoice); err != nil {
		return err
	}
	st.result.Invoice = invoice
	return nil
}

func (s *PaymentService) applyFailure(ctx context.Context, tx domainrepo.SettlementTx, st *settlement, outcome *gateway.PaymentOutcome, src Source) error {
	payment := st.result.Payment

	reason := outcome.FailureReason
	if reason == "" {
		reason = "Payment failed"
	}

	ok, err := tx.FailPayment(ctx, payment.ID, reason, src == SourceAdmin)
	if err != nil || !ok {
		return err
	}
	st.result.Applied = true
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = &reason
	payment.ConfirmedByAdmin = src == SourceAdmin

	job, err := tx.GetJob(ctx, payment.JobID)
	if err != nil {
		return err
	}
	st.job = job
	return nil
}

func (s *PaymentService) afterSuccess(ctx context.Context, st *settlement) {
	job := st.job
	payment := st.result.Payment
	if st.refundDue {
		s.afterCancelledJobPayment(ctx, job, payment)
		return
	}
	details := jobDetails(job, s.baseURL)

	if st.prevStatus != string(valueobject.JobStatusCompleted) {
		scheduleAttachmentRetention(ctx, s.jobs, job.ID, s.now())
	}

	invoiceNumber := ""
	if st.result.Invoice != nil {
		invoiceNumber = st.result.Invoice.InvoiceNumber
	}

	if job.AssignedFreelancerID != nil {
		freelancerID := *job.AssignedFreelancerID
		share := st.split.Freelancer
		s.notify.notifyOne(ctx, freelancerID, job.ID, models.NotificationKindPayment, "Payment received",
			fmt.Sprintf("You have been paid %.2f for %q", share, job.Title))
		s.notify.email(ctx, freelancerID, job.ID, func() (mail.Email, error) {
			return mail.PaymentReceived(details, share, invoiceNumber)
		})
	}

	s.notify.notifyOne(ctx, payment.ClientID, job.ID, models.NotificationKindPayment, "Payment confirmed",
		fmt.Sprintf("Your payment of %.2f for %q has been confirmed", payment.Amount, job.Title))
	s.notify.email(ctx, payment.ClientID, job.ID, func() (mail.Email, error) {
		return mail.PaymentConfirmed(details, payment.Amount, invoiceNumber)
	})
}

func (s *PaymentService) afterCancelledJobPayment(ctx context.Context, job *models.Job, payment *models.Payment) {
	logger.Log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"job_id":     job.ID,
		"amount":     payment.Amount,
	}).Warn("оплата по отменённому заказу, требуется возврат")

	s.notify.admins(ctx, job.ID, models.NotificationKindPayment, "Refund required",
		fmt.Sprintf("Payment of %.2f was received for cancelled job %q and must be refunded", payment.Amount, job.Title))
	s.notify.notifyOne(ctx, payment.ClientID, job.ID, models.NotificationKindPayment, "Payment received for cancelled job",
		fmt.Sprintf("Your payment of %.2f for %q was received after the job was cancelled. It will be refunded.", payment.Amount, job.Title))
}

func (s *PaymentService) afterFailure(ctx context.Context, st *settlement, src Source) {
	job := st.job
	payment := st.result.Payment
	details := jobDetails(job, s.baseURL)

	if src == SourceAdmin {
		s.notify.notifyOne(ctx, payment.ClientID, job.ID, models.NotificationKindPayment, "Payment not verified",
			"We could not verify your payment. Please retry with M-Pesa or card, or enter your M-Pesa confirmation code manually.")
		s.notify.email(ctx, payment.ClientID, job.ID, func() (mail.Email, error) {
			return mail.PaymentRejected(details)
		})
		return
	}

	reason := ""
	if payment.FailureReason != nil {
		reason = *payment.FailureReason
	}
	s.notify.notifyOne(ctx, payment.ClientID, job.ID, models.NotificationKindPayment, "Payment failed",
		fmt.Sprintf("Your payment for %q failed: %s. Please try again.", job.Title, reason))
	s.notify.email(ctx, payment.ClientID, job.ID, func() (mail.Email, error) {
		return mail.PaymentFailed(details, reason)
	})
}

// Initiate создаёт pending платёж и отправляет клиенту STK push.
func (s *PaymentService) Initiate(ctx context.Context, actor models.Actor, in InitiateInput) (*InitiateResult, error) {
	if !s.mpesa.Configured() {
		return nil, apperror.ErrGatewayNotConfigured
	}
	if in.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной")
	}
	phone, err := mpesa.NormalizePhone(in.Phone)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "некорректный номер телефона")
	}

	job, err := s.payableJob(ctx, actor, in.JobID, &in.ClientID)
	if err != nil {
		return nil, err
	}
	// Расчёт делит сумму заказа, поэтому недоплата не принимается.
	if !valueobject.Covers(in.Amount, job.Amount) {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("сумма оплаты меньше стоимости заказа (%.2f)", job.Amount))
	}

	payment := &models.Payment{
		JobID:         job.ID,
		ClientID:      in.ClientID,
		FreelancerID:  job.AssignedFreelancerID,
		Amount:        in.Amount,
		PaymentMethod: models.PaymentMethodMpesa,
		Phone:         &phone,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, apperror.Internal(err)
	}

	push, err := s.mpesa.InitiatePush(ctx, phone, in.Amount, job.DisplayID, "Order "+job.DisplayID)
	if err != nil {
		fields := logrus.Fields{"payment_id": payment.ID, "job_id": job.ID}
		logger.Log.WithFields(fields).WithError(err).Error("не удалось отправить STK push")
		if markErr := s.payments.MarkInitiationFailed(ctx, payment.ID, "push request failed"); markErr != nil {
			logger.Log.WithFields(fields).WithError(markErr).Warn("не удалось пометить платёж как неудачный")
		}
		return nil, gatewayError(err)
	}

	if err := s.payments.SetGatewayRefs(ctx, payment.ID, push.MerchantRequestID, push.CheckoutRequestID); err != nil {
		return nil, apperror.Internal(err)
	}
	payment.MerchantRequestID = &push.MerchantRequestID
	payment.CheckoutRequestID = &push.CheckoutRequestID

	return &InitiateResult{Payment: payment, CustomerMessage: push.CustomerMessage}, nil
}

// HandleMobileMoneyCallback применяет callback шлюза. Ошибки только логируются:
// шлюз должен получить подтверждение в любом случае.
func (s *PaymentService) HandleMobileMoneyCallback(ctx context.Context, body []byte) {
	outcome, err := s.mpesa.ParseCallback(body)
	if err != nil {
		logger.Log.WithError(err).Warn("некорректный callback M-Pesa")
		return
	}
	fields := logrus.Fields{"checkout_request_id": outcome.Reference}

	payment, err := s.payments.GetByCheckoutRequestID(ctx, outcome.Reference)
	if err != nil {
		logger.Log.WithFields(fields).WithError(err).Warn("callback M-Pesa для неизвестного платежа")
		return
	}
	if outcome.Pending() {
		return
	}

	if _, err := s.Confirm(ctx, payment.ID, outcome, SourceWebhook); err != nil {
		fields["payment_id"] = payment.ID
		logger.Log.WithFields(fields).WithError(err).Error("не удалось применить callback M-Pesa")
	}
}

// QueryMobileMoney опрашивает шлюз и применяет исход, если он уже известен.
func (s *PaymentService) QueryMobileMoney(ctx context.Context, actor models.Actor, checkoutRequestID string) (*PollResult, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "checkoutReference обязателен")
	}

	payment, err := s.payments.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, mapPaymentError(err)
	}
	if !canSeePayment(actor, payment) {
		return nil, apperror.ErrForbidden
	}
	if payment.IsFinal() {
		return &PollResult{Payment: payment, State: stateOf(payment)}, nil
	}

	if !s.mpesa.Configured() {
		return nil, apperror.ErrGatewayNotConfigured
	}
	outcome, err := s.mpesa.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		return nil, gatewayError(err)
	}
	if outcome.Pending() {
		return &PollResult{Payment: payment, State: gateway.StatePending}, nil
	}

	res, err := s.Confirm(ctx, payment.ID, outcome, SourcePoll)
	if err != nil {
		return nil, err
	}
	return &PollResult{Payment: res.Payment, State: stateOf(res.Payment), Applied: res.Applied}, nil
}

// VerifyCardPayment проверяет карточную транзакцию по reference и применяет исход.
// Платёж создаётся при первой проверке reference.
func (s *PaymentService) VerifyCardPayment(ctx context.Context, actor models.Actor, in VerifyCardInput) (*PollResult, error) {
	if !s.card.Configured() {
		return nil, apperror.ErrGatewayNotConfigured
	}
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "reference обязателен")
	}

	payment, err := s.payments.GetByReference(ctx, in.Reference)
	switch {
	case err == nil:
		if !canSeePayment(actor, payment) {
			return nil, apperror.ErrForbidden
		}
		if payment.IsFinal() {
			return &PollResult{Payment: payment, State: stateOf(payment)}, nil
		}
	case errors.Is(err, repository.ErrPaymentNotFound):
		if _, err := s.payableJob(ctx, actor, in.JobID, &in.ClientID); err != nil {
			return nil, err
		}
	default:
		return nil, apperror.Internal(err)
	}

	outcome, err := s.card.Verify(ctx, in.Reference)
	if err != nil {
		return nil, gatewayError(err)
	}

	if payment == nil {
		payment, err = s.cardPayment(ctx, outcome, in.JobID, in.ClientID)
		if err != nil {
			return nil, err
		}
	}
	if outcome.Pending() {
		return &PollResult{Payment: payment, State: gateway.StatePending}, nil
	}

	res, err := s.Confirm(ctx, payment.ID, outcome, SourcePoll)
	if err != nil {
		return nil, err
	}
	return &PollResult{Payment: res.Payment, State: stateOf(res.Payment), Applied: res.Applied}, nil
}

// HandleCardWebhook проверяет подпись события карточного шлюза и применяет его.
// Как и callback M-Pesa, ничего не возвращает вызывающему.
func (s *PaymentService) HandleCardWebhook(ctx context.Context, body []byte, signature string) {
	if !s.card.VerifySignature(body, signature) {
		logger.Log.Warn("webhook карточного шлюза с неверной подписью")
		return
	}

	outcome, err := s.card.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, gateway.ErrIgnoredEvent) {
			logger.Log.Debug("событие карточного шлюза пропущено")
			return
		}
		logger.Log.WithError(err).Warn("некорректный webhook карточного шлюза")
		return
	}
	fields := logrus.Fields{"reference": outcome.Reference}

	payment, err := s.payments.GetByReference(ctx, outcome.Reference)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		jobID, jobErr := uuid.Parse(outcome.Metadata["job_id"])
		clientID, clientErr := uuid.Parse(outcome.Metadata["client_id"])
		if jobErr != nil || clientErr != nil {
			logger.Log.WithFields(fields).Warn("webhook карточного шлюза без job_id/client_id в metadata")
			return
		}
		payment, err = s.cardPayment(ctx, outcome, jobID, clientID)
	}
	if err != nil {
		logger.Log.WithFields(fields).WithError(err).Error("не удалось найти платёж для webhook")
		return
	}
	if outcome.Pending() {
		return
	}

	if _, err := s.Confirm(ctx, payment.ID, outcome, SourceWebhook); err != nil {
		fields["payment_id"] = payment.ID
		logger.Log.WithFields(fields).WithError(err).Error("не удалось применить webhook карточного шлюза")
	}
}

// ConfirmManual - ручное подтверждение или отклонение платежа администратором.
func (s *PaymentService) ConfirmManual(ctx context.Context, actor models.Actor, paymentID uuid.UUID, confirmed bool) (*ConfirmResult, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	outcome := &gateway.PaymentOutcome{State: gateway.StateSucceeded}
	if !confirmed {
		outcome = &gateway.PaymentOutcome{State: gateway.StateFailed, FailureReason: adminRejectReason}
	}
	return s.Confirm(ctx, paymentID, outcome, SourceAdmin)
}

// GetPayment возвращает платёж его участнику или администратору.
func (s *PaymentService) GetPayment(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, mapPaymentError(err)
	}
	if !canSeePayment(actor, payment) {
		return nil, apperror.ErrForbidden
	}
	return payment, nil
}

// ListPayments возвращает платежи по заказу.
func (s *PaymentService) ListPayments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]models.Payment, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapJobError(err)
	}
	if !canView(actor, job) {
		return nil, apperror.ErrForbidden
	}

	payments, err := s.payments.ListByJob(ctx, jobID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return payments, nil
}

// payableJob проверяет, что заказ существует, принадлежит клиенту и ещё не оплачен.
// Пустой clientID подставляется из actor.
func (s *PaymentService) payableJob(ctx context.Context, actor models.Actor, jobID uuid.UUID, clientID *uuid.UUID) (*models.Job, error) {
	if *clientID == uuid.Nil {
		*clientID = actor.UserID
	}
	if !actor.IsAdmin() && *clientID != actor.UserID {
		return nil, apperror.ErrForbidden
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapJobError(err)
	}
	if job.ClientID != *clientID {
		return nil, apperror.New(apperror.ErrCodeValidation, "заказ принадлежит другому клиенту")
	}
	if job.PaymentConfirmed {
		return nil, apperror.New(apperror.ErrCodeConflict, "заказ уже оплачен")
	}
	if job.Status == string(valueobject.JobStatusCancelled) {
		return nil, apperror.ErrJobClosed
	}
	return job, nil
}

// cardPayment создаёт карточный платёж по reference; при гонке с параллельным
// запросом возвращает уже созданный.
func (s *PaymentService) cardPayment(ctx context.Context, outcome *gateway.PaymentOutcome, jobID, clientID uuid.UUID) (*models.Payment, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapJobError(err)
	}

	amount := outcome.Amount
	if amount <= 0 {
		amount = job.Amount
	}
	if !valueobject.Covers(amount, job.Amount) {
		logger.Log.WithFields(logrus.Fields{
			"job_id":    job.ID,
			"reference": outcome.Reference,
			"paid":      amount,
			"due":       job.Amount,
		}).Warn("карточная оплата меньше стоимости заказа")
	}
	reference := outcome.Reference

	payment := &models.Payment{
		JobID:         job.ID,
		ClientID:      clientID,
		FreelancerID:  job.AssignedFreelancerID,
		Amount:        amount,
		PaymentMethod: models.PaymentMethodCard,
		Reference:     &reference,
	}
	err = s.payments.Create(ctx, payment)
	if errors.Is(err, repository.ErrDuplicateCardRef) {
		return s.payments.GetByReference(ctx, reference)
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return payment, nil
}

func canSeePayment(actor models.Actor, payment *models.Payment) bool {
	if actor.IsAdmin() || actor.UserID == payment.ClientID {
		return true
	}
	return payment.FreelancerID != nil && *payment.FreelancerID == actor.UserID
}

func stateOf(payment *models.Payment) gateway.State {
	switch payment.Status {
	case models.PaymentStatusCompleted:
		return gateway.StateSucceeded
	case models.PaymentStatusFailed:
		return gateway.StateFailed
	default:
		return gateway.StatePending
	}
}

// gatewayError скрывает от клиента детали ответа шлюза.
func gatewayError(err error) error {
	if errors.Is(err, gateway.ErrNotConfigured) {
		return apperror.ErrGatewayNotConfigured
	}
	return apperror.Wrap(err, apperror.ErrCodeUpstreamGateway, "платёжный шлюз недоступен или отклонил запрос")
}

func mapPaymentError(err error) error {
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return apperror.ErrPaymentNotFound
	}
	return apperror.Internal(err)
}

func mapSettlementError(err error) error {
	switch {
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperror.ErrPaymentNotFound
	case errors.Is(err, repository.ErrJobNotFound):
		return apperror.ErrJobNotFound
	case errors.Is(err, repository.ErrJobClosed):
		return apperror.ErrJobClosed
	case errors.Is(err, repository.ErrUserNotFound):
		return apperror.ErrFreelancerNotFound
	default:
		return apperror.Internal(err)
	}
}
