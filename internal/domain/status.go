package domain

import "github.com/shopspring/decimal"

// DerivePaymentStatus buckets paid against total. A fully covered total wins
// over the zero check, so a zero-total sale counts as paid.
func DerivePaymentStatus(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return PaymentStatusPaid
	case paid.IsPositive():
		return PaymentStatusPartial
	default:
		return PaymentStatusUnpaid
	}
}

// InitialSaleStatus is the lifecycle status chosen when a sale is recorded.
func InitialSaleStatus(total, paid decimal.Decimal) SaleStatus {
	if paid.GreaterThanOrEqual(total) {
		return SaleStatusCompleted
	}
	return SaleStatusPending
}

func BalanceAmount(total, paid decimal.Decimal) decimal.Decimal {
	balance := total.Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}
