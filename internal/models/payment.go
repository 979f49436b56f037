package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment - попытка оплаты заказа через шлюз.
type Payment struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	JobID             uuid.UUID  `db:"job_id" json:"job_id"`
	ClientID          uuid.UUID  `db:"client_id" json:"client_id"`
	FreelancerID      *uuid.UUID `db:"freelancer_id" json:"freelancer_id,omitempty"`
	Amount            float64    `db:"amount" json:"amount"`
	PaymentMethod     string     `db:"payment_method" json:"payment_method"`
	Status            string     `db:"status" json:"status"`
	Phone             *string    `db:"phone" json:"phone,omitempty"`
	MerchantRequestID *string    `db:"merchant_request_id" json:"merchant_request_id,omitempty"`
	CheckoutRequestID *string    `db:"checkout_request_id" json:"checkout_request_id,omitempty"`
	Reference         *string    `db:"reference" json:"reference,omitempty"`
	ReceiptNumber     *string    `db:"receipt_number" json:"receipt_number,omitempty"`
	FailureReason     *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	ConfirmedByAdmin  bool       `db:"confirmed_by_admin" json:"confirmed_by_admin"`
	ConfirmedAt       *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsFinal сообщает, что платёж уже в терминальном состоянии.
func (p *Payment) IsFinal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// Invoice - счёт, выставляемый при подтверждении оплаты.
type Invoice struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	JobID            uuid.UUID  `db:"job_id" json:"job_id"`
	PaymentID        uuid.UUID  `db:"payment_id" json:"payment_id"`
	ClientID         uuid.UUID  `db:"client_id" json:"client_id"`
	FreelancerID     uuid.UUID  `db:"freelancer_id" json:"freelancer_id"`
	InvoiceNumber    string     `db:"invoice_number" json:"invoice_number"`
	Amount           float64    `db:"amount" json:"amount"`
	FreelancerAmount float64    `db:"freelancer_amount" json:"freelancer_amount"`
	AdminCommission  float64    `db:"admin_commission" json:"admin_commission"`
	Status           string     `db:"status" json:"status"`
	IsPaid           bool       `db:"is_paid" json:"is_paid"`
	PaidAt           *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
