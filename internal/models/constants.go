package models

// Роли пользователей
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// BidStatus константы статусов ставок
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

// PaymentStatus константы статусов платежей
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// PaymentMethod константы способов оплаты
const (
	PaymentMethodMpesa = "mpesa"
	PaymentMethodCard  = "card"
)

// InvoiceStatusPaid статус оплаченного счёта.
const InvoiceStatusPaid = "paid"

// NotificationKind константы типов уведомлений
const (
	NotificationKindStatus  = "job_status"
	NotificationKindPayment = "payment"
)

// ValidRoles список валидных ролей
var ValidRoles = map[string]struct{}{
	RoleClient:     {},
	RoleFreelancer: {},
	RoleAdmin:      {},
}
