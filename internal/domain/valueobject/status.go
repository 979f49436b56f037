package valueobject

import (
	"fmt"

	"github.com/ignatzorin/orderdesk-backend/internal/pkg/apperror"
)

type JobStatus string

const (
	JobStatusPending         JobStatus = "pending"
	JobStatusApproved        JobStatus = "approved"
	JobStatusAssigned        JobStatus = "assigned"
	JobStatusInProgress      JobStatus = "in_progress"
	JobStatusEditing         JobStatus = "editing"
	JobStatusDelivered       JobStatus = "delivered"
	JobStatusRevision        JobStatus = "revision"
	JobStatusRevisionPending JobStatus = "revision_pending"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusCancelled       JobStatus = "cancelled"
)

func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusApproved, JobStatusAssigned, JobStatusInProgress,
		JobStatusEditing, JobStatusDelivered, JobStatusRevision, JobStatusRevisionPending,
		JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal: из completed и cancelled статус больше не меняется.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// NeedsAssignee: начиная с assigned заказ не может жить без исполнителя
// (кроме cancelled).
func (s JobStatus) NeedsAssignee() bool {
	switch s {
	case JobStatusPending, JobStatusApproved, JobStatusCancelled:
		return false
	}
	return s.IsValid()
}

// AcceptsBids сообщает, можно ли ещё делать ставки на заказ.
func (s JobStatus) AcceptsBids() bool {
	return s == JobStatusPending || s == JobStatusApproved
}

func NewJobStatus(status string) (JobStatus, error) {
	s := JobStatus(status)
	if !s.IsValid() {
		return "", apperror.ErrInvalidStatus
	}
	return s, nil
}

var statusMessages = map[JobStatus]string{
	JobStatusDelivered:  "Work has been delivered and is ready for review",
	JobStatusCompleted:  "The job has been completed",
	JobStatusRevision:   "A revision has been requested",
	JobStatusCancelled:  "The job has been cancelled",
	JobStatusInProgress: "Work on the job is now in progress",
	JobStatusAssigned:   "The job has been assigned to a freelancer",
}

// StatusChangeMessage возвращает текст уведомления о смене статуса.
func StatusChangeMessage(from, to JobStatus) string {
	if msg, ok := statusMessages[to]; ok {
		return msg
	}
	return fmt.Sprintf("Status changed from %s to %s", from, to)
}
