package common

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound - общая ошибка отсутствия записи для всех репозиториев.
var ErrNotFound = errors.New("entity not found")

// IsUniqueViolation сообщает, что запись нарушила уникальный индекс (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
