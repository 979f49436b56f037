// Package gateway содержит общие типы платёжных шлюзов.
package gateway

import (
	"errors"
	"fmt"
)

// ErrNotConfigured возвращается, если для шлюза не заданы учётные данные.
var ErrNotConfigured = errors.New("gateway: credentials not configured")

// ErrIgnoredEvent - событие шлюза, которое не меняет состояние платежа.
var ErrIgnoredEvent = errors.New("gateway: event ignored")

// State - итог платежа по данным шлюза.
type State string

const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StatePending   State = "pending"
)

// PaymentOutcome - нормализованный ответ шлюза (callback, опрос или проверка).
type PaymentOutcome struct {
	// Reference - CheckoutRequestID для M-Pesa или reference карточной транзакции.
	Reference     string
	State         State
	ReceiptNumber string
	Amount        float64
	Phone         string
	FailureReason string
	Metadata      map[string]string
}

func (o *PaymentOutcome) Succeeded() bool { return o.State == StateSucceeded }
func (o *PaymentOutcome) Pending() bool   { return o.State == StatePending }

// PushResult - корреляционные идентификаторы запроса STK push.
type PushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
}

// APIError - ошибка, которую вернул сам шлюз.
type APIError struct {
	Gateway    string
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: код ответа %d: %s %s", e.Gateway, e.HTTPStatus, e.Code, e.Message)
}
