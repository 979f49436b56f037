package models

import (
	"time"

	"github.com/google/uuid"
)

// User описывает пользователя платформы вместе с полями заработка фрилансера.
type User struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Name          string    `db:"name" json:"name"`
	Role          string    `db:"role" json:"role"`
	Balance       float64   `db:"balance" json:"balance"`
	Earned        float64   `db:"earned" json:"earned"`
	TotalEarnings float64   `db:"total_earnings" json:"total_earnings"`
	CompletedJobs int       `db:"completed_jobs" json:"completed_jobs"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Actor - вызывающий пользователь, передаётся в сервисы явно.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin сообщает, является ли вызывающий администратором.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
