package valueobject

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	freelancerRate = decimal.RequireFromString("0.7")
	platformRate   = decimal.RequireFromString("0.3")
)

// Settlement - разбиение подтверждённой оплаты на доли.
// Доли округляются независимо и в сумме могут отличаться от Gross на копейку.
type Settlement struct {
	Gross      float64
	Freelancer float64
	Platform   float64
}

// FreelancerShare = round(gross × 0.7, 2), half-up.
func FreelancerShare(gross float64) float64 {
	return toCents(decimal.NewFromFloat(gross).Mul(freelancerRate))
}

// PlatformShare = round(gross × 0.3, 2), half-up.
func PlatformShare(gross float64) float64 {
	return toCents(decimal.NewFromFloat(gross).Mul(platformRate))
}

func Split(gross float64) Settlement {
	return Settlement{
		Gross:      gross,
		Freelancer: FreelancerShare(gross),
		Platform:   PlatformShare(gross),
	}
}

// RecomputeBalance выводит баланс фрилансера из сумм оплаченных завершённых заказов.
func RecomputeBalance(amounts []float64) float64 {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(decimal.NewFromFloat(amount))
	}
	return toCents(total.Mul(freelancerRate))
}

// RoundPrice считает итоговую цену заказа с учётом срочности.
func RoundPrice(amount, multiplier float64) float64 {
	if multiplier <= 0 {
		multiplier = 1
	}
	return toCents(decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(multiplier)))
}

// Covers сообщает, покрывает ли оплата сумму заказа с точностью до копейки.
func Covers(paid, due float64) bool {
	return decimal.NewFromFloat(paid).Round(2).GreaterThanOrEqual(decimal.NewFromFloat(due).Round(2))
}

// InvoiceNumber формирует номер вида INV-YYYYMMDD-NNNNN; issuedToday - сколько счетов уже выставлено за день.
func InvoiceNumber(day time.Time, issuedToday int) string {
	return fmt.Sprintf("INV-%s-%05d", day.Format("20060102"), issuedToday+1)
}

// decimal.Round округляет половину от нуля, для неотрицательных сумм это half-up.
func toCents(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
