package models

import (
	"time"

	"github.com/google/uuid"
)

// Job - заказ клиента.
type Job struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	DisplayID            string     `db:"display_id" json:"display_id"`
	OrderNumber          string     `db:"order_number" json:"order_number"`
	ClientID             uuid.UUID  `db:"client_id" json:"client_id"`
	AssignedFreelancerID *uuid.UUID `db:"assigned_freelancer_id" json:"assigned_freelancer_id,omitempty"`
	Title                string     `db:"title" json:"title"`
	Description          string     `db:"description" json:"description"`
	Amount               float64    `db:"amount" json:"amount"`
	UrgencyMultiplier    float64    `db:"urgency_multiplier" json:"urgency_multiplier"`
	CalculatedPrice      float64    `db:"calculated_price" json:"calculated_price"`
	Deadline             time.Time  `db:"deadline" json:"deadline"`
	ActualDeadline       *time.Time `db:"actual_deadline" json:"actual_deadline,omitempty"`
	FreelancerDeadline   *time.Time `db:"freelancer_deadline" json:"freelancer_deadline,omitempty"`
	Status               string     `db:"status" json:"status"`
	AdminApproved        bool       `db:"admin_approved" json:"admin_approved"`
	ClientApproved       bool       `db:"client_approved" json:"client_approved"`
	RevisionRequested    bool       `db:"revision_requested" json:"revision_requested"`
	RevisionNotes        *string    `db:"revision_notes" json:"revision_notes,omitempty"`
	PaymentConfirmed     bool       `db:"payment_confirmed" json:"payment_confirmed"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Bid - ставка фрилансера на заказ.
type Bid struct {
	ID           uuid.UUID `db:"id" json:"id"`
	JobID        uuid.UUID `db:"job_id" json:"job_id"`
	FreelancerID uuid.UUID `db:"freelancer_id" json:"freelancer_id"`
	BidAmount    float64   `db:"bid_amount" json:"bid_amount"`
	Message      string    `db:"message" json:"message"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// JobAttachment - файл, прикреплённый к заказу.
type JobAttachment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	JobID       uuid.UUID  `db:"job_id" json:"job_id"`
	UploadedBy  uuid.UUID  `db:"uploaded_by" json:"uploaded_by"`
	FileName    string     `db:"file_name" json:"file_name"`
	FileURL     string     `db:"file_url" json:"file_url"`
	DeleteAfter *time.Time `db:"delete_after" json:"delete_after,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
