package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	domainrepo "github.com/ignatzorin/orderdesk-backend/internal/domain/repository"
	"github.com/ignatzorin/orderdesk-backend/internal/gateway"
	"github.com/ignatzorin/orderdesk-backend/internal/gateway/mpesa"
	"github.com/ignatzorin/orderdesk-backend/internal/mail"
	"github.com/ignatzorin/orderdesk-backend/internal/models"
	"github.com/ignatzorin/orderdesk-backend/internal/repository"
)

// memStore - хранилище в памяти. Транзакции сериализуются мьютексом,
// ошибка внутри RunInTx откатывает все изменения.
type memStore struct {
	mu        sync.Mutex
	payments  map[uuid.UUID]models.Payment
	jobs      map[uuid.UUID]models.Job
	users     map[uuid.UUID]models.User
	invoices  []models.Invoice
	scheduled map[uuid.UUID]time.Time

	failInvoice error
	// txLog - порядок вызовов внутри транзакций
	txLog []string
}

func newMemStore() *memStore {
	return &memStore{
		payments:  map[uuid.UUID]models.Payment{},
		jobs:      map[uuid.UUID]models.Job{},
		users:     map[uuid.UUID]models.User{},
		scheduled: map[uuid.UUID]time.Time{},
	}
}

func (m *memStore) addUser(role, email string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: uuid.New(), Email: email, Name: email, Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addJob(job models.Job) models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.DisplayID == "" {
		job.DisplayID = "JOB-" + strings.ToUpper(job.ID.String()[:8])
	}
	m.jobs[job.ID] = job
	return job
}

func (m *memStore) addPayment(p models.Payment) models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	m.payments[p.ID] = p
	return p
}

func (m *memStore) user(id uuid.UUID) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memStore) job(id uuid.UUID) models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

func (m *memStore) payment(id uuid.UUID) models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *memStore) invoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

func (m *memStore) RunInTx(ctx context.Context, fn func(tx domainrepo.SettlementTx) error) error {
	// как BeginTx: отменённый контекст не открывает транзакцию
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	payments := copyMap(m.payments)
	jobs := copyMap(m.jobs)
	users := copyMap(m.users)
	invoices := append([]models.Invoice(nil), m.invoices...)

	if err := fn(memTx{m}); err != nil {
		m.payments, m.jobs, m.users, m.invoices = payments, jobs, users, invoices
		return err
	}
	return nil
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// memTx работает под мьютексом, взятым в RunInTx.
type memTx struct {
	m *memStore
}

func (t memTx) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, ok := t.m.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	return &p, nil
}

func (t memTx) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := t.m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return &j, nil
}

func (t memTx) CompletePayment(ctx context.Context, id uuid.UUID, c domainrepo.PaymentCompletion) (bool, error) {
	p, ok := t.m.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusCompleted
	if c.ReceiptNumber != nil {
		p.ReceiptNumber = c.ReceiptNumber
	}
	p.ConfirmedByAdmin = c.ConfirmedByAdmin
	at := c.ConfirmedAt
	p.ConfirmedAt = &at
	p.FailureReason = nil
	t.m.payments[id] = p
	return true, nil
}

func (t memTx) FailPayment(ctx context.Context, id uuid.UUID, reason string, byAdmin bool) (bool, error) {
	p, ok := t.m.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusFailed
	p.FailureReason = &reason
	p.ConfirmedByAdmin = byAdmin
	t.m.payments[id] = p
	return true, nil
}

func (t memTx) MarkJobPaid(ctx context.Context, jobID uuid.UUID) error {
	j, ok := t.m.jobs[jobID]
	if !ok || j.Status == "cancelled" {
		return repository.ErrJobClosed
	}
	j.Status = "completed"
	j.PaymentConfirmed = true
	t.m.jobs[jobID] = j
	return nil
}

func (t memTx) LockFreelancer(ctx context.Context, freelancerID uuid.UUID) error {
	t.m.txLog = append(t.m.txLog, "lock")
	if _, ok := t.m.users[freelancerID]; !ok {
		return repository.ErrUserNotFound
	}
	return nil
}

func (t memTx) CreditFreelancer(ctx context.Context, freelancerID uuid.UUID, share float64) error {
	u, ok := t.m.users[freelancerID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Balance += share
	u.Earned += share
	u.TotalEarnings += share
	u.CompletedJobs++
	t.m.users[freelancerID] = u
	return nil
}

func (t memTx) QualifyingJobAmounts(ctx context.Context, freelancerID uuid.UUID) ([]float64, error) {
	t.m.txLog = append(t.m.txLog, "read")
	var amounts []float64
	for _, j := range t.m.jobs {
		if j.AssignedFreelancerID != nil && *j.AssignedFreelancerID == freelancerID &&
			j.Status == "completed" && j.PaymentConfirmed {
			amounts = append(amounts, j.Amount)
		}
	}
	return amounts, nil
}

func (t memTx) SetBalance(ctx context.Context, freelancerID uuid.UUID, balance float64) error {
	t.m.txLog = append(t.m.txLog, "write")
	u := t.m.users[freelancerID]
	u.Balance = balance
	t.m.users[freelancerID] = u
	return nil
}

func (t memTx) CountInvoicesOn(ctx context.Context, day time.Time) (int, error) {
	prefix := "INV-" + day.Format("20060102") + "-"
	n := 0
	for _, inv := range t.m.invoices {
		if strings.HasPrefix(inv.InvoiceNumber, prefix) {
			n++
		}
	}
	return n, nil
}

func (t memTx) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	if t.m.failInvoice != nil {
		return t.m.failInvoice
	}
	invoice.ID = uuid.New()
	t.m.invoices = append(t.m.invoices, *invoice)
	return nil
}

// memUsers, memJobs и memPayments читают то же состояние вне транзакции.
type memUsers struct{ m *memStore }

func (u memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	user, ok := u.m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (u memUsers) ListIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	var ids []uuid.UUID
	for id, user := range u.m.users {
		if user.Role == role {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memJobs struct{ m *memStore }

func (j memJobs) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j.m.mu.Lock()
	defer j.m.mu.Unlock()
	job, ok := j.m.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return &job, nil
}

func (j memJobs) ScheduleAttachmentDeletion(ctx context.Context, jobID uuid.UUID, at time.Time) (int64, error) {
	j.m.mu.Lock()
	defer j.m.mu.Unlock()
	j.m.scheduled[jobID] = at
	return 1, nil
}

type memPayments struct{ m *memStore }

func (p memPayments) Create(ctx context.Context, payment *models.Payment) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if payment.Reference != nil {
		for _, existing := range p.m.payments {
			if existing.Reference != nil && *existing.Reference == *payment.Reference {
				return repository.ErrDuplicateCardRef
			}
		}
	}
	payment.ID = uuid.New()
	payment.Status = models.PaymentStatusPending
	p.m.payments[payment.ID] = *payment
	return nil
}

func (p memPayments) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return p.find(func(x models.Payment) bool { return x.ID == id })
}

func (p memPayments) GetByCheckoutRequestID(ctx context.Context, checkoutID string) (*models.Payment, error) {
	return p.find(func(x models.Payment) bool {
		return x.CheckoutRequestID != nil && *x.CheckoutRequestID == checkoutID
	})
}

func (p memPayments) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return p.find(func(x models.Payment) bool { return x.Reference != nil && *x.Reference == reference })
}

func (p memPayments) SetGatewayRefs(ctx context.Context, id uuid.UUID, merchantRequestID, checkoutRequestID string) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	payment, ok := p.m.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	payment.MerchantRequestID = &merchantRequestID
	payment.CheckoutRequestID = &checkoutRequestID
	p.m.payments[id] = payment
	return nil
}

func (p memPayments) MarkInitiationFailed(ctx context.Context, id uuid.UUID, reason string) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	payment, ok := p.m.payments[id]
	if !ok || payment.Status != models.PaymentStatusPending {
		return repository.ErrPaymentNotPending
	}
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = &reason
	p.m.payments[id] = payment
	return nil
}

func (p memPayments) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Payment, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var out []models.Payment
	for _, payment := range p.m.payments {
		if payment.JobID == jobID {
			out = append(out, payment)
		}
	}
	return out, nil
}

func (p memPayments) find(match func(models.Payment) bool) (*models.Payment, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for _, payment := range p.m.payments {
		if match(payment) {
			found := payment
			return &found, nil
		}
	}
	return nil, repository.ErrPaymentNotFound
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID uuid.UUID, jobID *uuid.UUID, kind, title, message string) error {
	args := m.Called(ctx, userID, jobID, kind, title, message)
	return args.Error(0)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to string, email mail.Email) error {
	args := m.Called(ctx, to, email)
	return args.Error(0)
}

// stubMpesa разбирает callback настоящим парсером, остальные ответы задаются в тесте.
type stubMpesa struct {
	configured bool
	push       *gateway.PushResult
	pushErr    error
	query      *gateway.PaymentOutcome
	queryErr   error
	pushPhone  string
}

func (s *stubMpesa) Configured() bool { return s.configured }

func (s *stubMpesa) InitiatePush(ctx context.Context, phone string, amount float64, accountRef, description string) (*gateway.PushResult, error) {
	s.pushPhone = phone
	return s.push, s.pushErr
}

func (s *stubMpesa) QueryStatus(ctx context.Context, checkoutRequestID string) (*gateway.PaymentOutcome, error) {
	return s.query, s.queryErr
}

func (s *stubMpesa) ParseCallback(body []byte) (*gateway.PaymentOutcome, error) {
	return mpesa.ParseCallback(body)
}

type stubCard struct {
	configured bool
	validSig   string
	outcome    *gateway.PaymentOutcome
	verifyErr  error
}

func (s *stubCard) Configured() bool { return s.configured }

func (s *stubCard) Verify(ctx context.Context, reference string) (*gateway.PaymentOutcome, error) {
	return s.outcome, s.verifyErr
}

func (s *stubCard) VerifySignature(body []byte, signature string) bool {
	return signature != "" && signature == s.validSig
}

func (s *stubCard) ParseWebhook(body []byte) (*gateway.PaymentOutcome, error) {
	if s.outcome == nil {
		return nil, errors.New("no outcome")
	}
	return s.outcome, nil
}
