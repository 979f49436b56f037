package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinJobTitleLength       = 3
	MaxJobTitleLength       = 200
	MaxJobDescriptionLength = 5000
	MaxOrderNumberLength    = 64
	MaxBidMessageLength     = 2000
	MaxRevisionNotesLength  = 2000
	MaxAmount               = 100000000.0 // 100 миллионов
	MaxUrgencyMultiplier    = 10.0
)

var orderNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateOrderNumber проверяет внешний номер заказа: буквы, цифры, '-' и '_'.
func ValidateOrderNumber(orderNumber string) error {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return fmt.Errorf("номер заказа обязателен")
	}
	if err := ValidateLength("номер заказа", orderNumber, 1, MaxOrderNumberLength); err != nil {
		return err
	}
	if !orderNumberPattern.MatchString(orderNumber) {
		return fmt.Errorf("номер заказа может содержать только буквы, цифры, '-' и '_'")
	}
	return nil
}

// ValidateJobTitle проверяет заголовок заказа.
func ValidateJobTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("название заказа обязательно")
	}
	return ValidateLength("название заказа", title, MinJobTitleLength, MaxJobTitleLength)
}

// ValidateJobDescription проверяет описание заказа. Пустое описание допустимо.
func ValidateJobDescription(description string) error {
	return ValidateLength("описание заказа", strings.TrimSpace(description), 0, MaxJobDescriptionLength)
}

// ValidateAmount проверяет денежную сумму: строго положительная и не больше MaxAmount.
func ValidateAmount(fieldName string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%s должна быть положительной", fieldName)
	}
	if amount > MaxAmount {
		return fmt.Errorf("%s не может превышать %.0f", fieldName, MaxAmount)
	}
	return nil
}

// ValidateUrgencyMultiplier проверяет множитель срочности. Ноль означает "не задан".
func ValidateUrgencyMultiplier(multiplier float64) error {
	if multiplier < 0 || multiplier > MaxUrgencyMultiplier {
		return fmt.Errorf("множитель срочности должен быть от 0 до %.0f", MaxUrgencyMultiplier)
	}
	return nil
}

// ValidateBidMessage проверяет сообщение к ставке.
func ValidateBidMessage(message string) error {
	return ValidateLength("сообщение к ставке", strings.TrimSpace(message), 0, MaxBidMessageLength)
}

// ValidateRevisionNotes проверяет комментарий к доработке.
func ValidateRevisionNotes(notes *string) error {
	if notes == nil {
		return nil
	}
	return ValidateLength("комментарий к доработке", strings.TrimSpace(*notes), 0, MaxRevisionNotesLength)
}
