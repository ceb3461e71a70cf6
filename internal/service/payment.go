package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/pricing"
	"retailpos/internal/repository"
	"retailpos/internal/sequence"

	"github.com/shopspring/decimal"
)

type RecordPaymentInput struct {
	Amount         decimal.Decimal
	Method         string
	TransactionRef *string
}

// recordPayment numbers and appends one ledger entry. The ledger is the only
// place paid amounts live; a sale's paid amount is always the sum of its rows.
func recordPayment(ctx context.Context, tx repository.Tx, paidAt time.Time, payment domain.Payment) (domain.Payment, error) {
	number, err := sequence.Next(ctx, tx, sequence.Payment)
	if err != nil {
		return domain.Payment{}, err
	}
	payment.PaymentNumber = number
	payment.PaidAt = paidAt
	if err := tx.InsertPayment(ctx, &payment); err != nil {
		return domain.Payment{}, err
	}
	return payment, nil
}

// RecordPayment takes an additional receipt against an open balance.
func (s *Service) RecordPayment(ctx context.Context, saleID int64, input RecordPaymentInput) (domain.Payment, error) {
	amount := pricing.Round(input.Amount)
	if !amount.IsPositive() {
		return domain.Payment{}, invalid("amount", "must be positive")
	}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		return domain.Payment{}, invalid("method", "is required")
	}

	var payment domain.Payment
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == domain.SaleStatusCancelled {
			return fmt.Errorf("sale %s is cancelled: %w", sale.InvoiceNumber, ErrInvalidTransition)
		}
		if amount.GreaterThan(sale.BalanceAmount) {
			return invalid("amount", "exceeds outstanding balance %s", sale.BalanceAmount.StringFixed(pricing.Scale))
		}

		payment, err = recordPayment(ctx, tx, s.now(), domain.Payment{
			Type:           domain.PaymentTypeReceipt,
			SaleID:         &sale.ID,
			CustomerID:     sale.CustomerID,
			Amount:         amount,
			Method:         method,
			TransactionRef: normalizeNullable(input.TransactionRef),
		})
		if err != nil {
			return err
		}
		return audit(ctx, tx, "payment.recorded", "sale", &sale.ID,
			fmt.Sprintf("%s %s on %s", payment.PaymentNumber, amount.StringFixed(pricing.Scale), sale.InvoiceNumber))
	})
	if err != nil {
		return domain.Payment{}, fmt.Errorf("record payment: %w", err)
	}
	return payment, nil
}

func (s *Service) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	if _, err := s.store.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, saleID)
}
