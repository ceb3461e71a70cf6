package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/internal/domain"
	"retailpos/internal/pricing"
	"retailpos/internal/repository"
	"retailpos/internal/sequence"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const rateScale int32 = 4

var hundred = decimal.NewFromInt(100)

type SaleItemInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	// TaxRate overrides the store rate for this line when set.
	TaxRate *decimal.Decimal
}

type CreateSaleInput struct {
	CustomerID      *int64
	Items           []SaleItemInput
	PaymentMethod   string
	AmountTendered  decimal.Decimal
	DiscountPercent decimal.Decimal
	Notes           *string
	TransactionRef  *string
	IdempotencyKey  *string
}

type UpdateSaleInput struct {
	Status     *domain.SaleStatus
	PaidAmount *decimal.Decimal
}

func (in *CreateSaleInput) normalize() error {
	if len(in.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	for i := range in.Items {
		it := &in.Items[i]
		if it.ProductID <= 0 {
			return invalid(fmt.Sprintf("items[%d].product_id", i), "must be positive")
		}
		it.UnitPrice = pricing.Round(it.UnitPrice)
		it.Discount = pricing.Round(it.Discount)
		if it.TaxRate != nil {
			rate := it.TaxRate.Round(rateScale)
			it.TaxRate = &rate
		}
	}

	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	if in.PaymentMethod == "" {
		in.PaymentMethod = "cash"
	}
	in.AmountTendered = pricing.Round(in.AmountTendered)
	if in.AmountTendered.IsNegative() {
		return invalid("amount_tendered", "must not be negative")
	}
	in.DiscountPercent = in.DiscountPercent.Round(rateScale)
	in.Notes = normalizeNullable(in.Notes)
	in.TransactionRef = normalizeNullable(in.TransactionRef)

	if key := normalizeNullable(in.IdempotencyKey); key != nil {
		parsed, err := uuid.Parse(*key)
		if err != nil {
			return invalid("idempotency_key", "must be a UUID")
		}
		canonical := parsed.String()
		in.IdempotencyKey = &canonical
	} else {
		in.IdempotencyKey = nil
	}
	return nil
}

func cartItems(items []SaleItemInput, storeRate decimal.Decimal) []pricing.Item {
	cart := make([]pricing.Item, len(items))
	for i, it := range items {
		rate := storeRate
		if it.TaxRate != nil {
			rate = *it.TaxRate
		}
		cart[i] = pricing.Item{
			ProductID:    it.ProductID,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			ItemDiscount: it.Discount,
			TaxRate:      rate,
		}
	}
	return cart
}

func pricingError(err error) error {
	field := "items"
	switch {
	case errors.Is(err, pricing.ErrInvalidPercent):
		field = "discount_percent"
	case errors.Is(err, pricing.ErrEmptyCart):
		field = "items"
	}
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

// QuoteSale prices a cart against the current store settings without
// writing anything.
func (s *Service) QuoteSale(ctx context.Context, input CreateSaleInput) (pricing.Totals, error) {
	if err := input.normalize(); err != nil {
		return pricing.Totals{}, err
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return pricing.Totals{}, err
	}
	totals, err := pricing.Calculate(cartItems(input.Items, settings.TaxRate), pricing.Options{
		TaxEnabled:            settings.TaxEnabled,
		GlobalDiscountPercent: input.DiscountPercent,
	})
	if err != nil {
		return pricing.Totals{}, pricingError(err)
	}
	return totals, nil
}

// CreateSale records a sale with its items, stock movements, initial payment
// and customer total in one transaction, then notifies after commit. The
// second return value is false when an idempotency key replayed an earlier
// sale.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (*domain.Sale, bool, error) {
	if err := input.normalize(); err != nil {
		return nil, false, err
	}
	if input.IdempotencyKey != nil {
		existing, err := s.store.FindSaleByIdempotencyKey(ctx, *input.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	var (
		sale     domain.Sale
		customer *domain.Customer
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}

		if input.CustomerID != nil {
			customer, err = tx.GetCustomer(ctx, *input.CustomerID)
			if errors.Is(err, repository.ErrNotFound) {
				return invalid("customer_id", "customer %d does not exist", *input.CustomerID)
			}
			if err != nil {
				return err
			}
		}

		totals, err := pricing.Calculate(cartItems(input.Items, settings.TaxRate), pricing.Options{
			TaxEnabled:            settings.TaxEnabled,
			GlobalDiscountPercent: input.DiscountPercent,
		})
		if err != nil {
			return pricingError(err)
		}

		invoice, err := sequence.Next(ctx, tx, sequence.Invoice)
		if err != nil {
			return err
		}

		initialPaid := decimal.Min(input.AmountTendered, totals.TotalAmount)
		sale = domain.Sale{
			InvoiceNumber:         invoice,
			SaleDate:              s.now(),
			CustomerID:            input.CustomerID,
			Subtotal:              totals.Subtotal,
			DiscountAmount:        totals.DiscountAmount,
			GlobalDiscountPercent: input.DiscountPercent,
			TaxEnabled:            settings.TaxEnabled,
			TaxAmount:             totals.TaxAmount,
			TotalAmount:           totals.TotalAmount,
			AmountTendered:        input.AmountTendered,
			PaymentMethod:         input.PaymentMethod,
			Status:                domain.InitialSaleStatus(totals.TotalAmount, initialPaid),
			Notes:                 input.Notes,
			IdempotencyKey:        input.IdempotencyKey,
		}
		if err := tx.InsertSale(ctx, &sale); err != nil {
			return err
		}

		sale.Items = make([]domain.SaleItem, len(totals.Lines))
		for i, line := range totals.Lines {
			sale.Items[i] = domain.SaleItem{
				Position:       i,
				ProductID:      line.ProductID,
				Quantity:       line.Quantity,
				UnitPrice:      line.UnitPrice,
				ItemDiscount:   line.ItemDiscount,
				DiscountAmount: line.DiscountAmount,
				TaxRate:        line.TaxRate,
				TaxAmount:      line.TaxAmount,
				LineTotal:      line.LineTotal,
			}
		}
		if err := tx.InsertSaleItems(ctx, sale.ID, sale.Items); err != nil {
			return err
		}

		for _, item := range sale.Items {
			if _, err := applyStockChange(ctx, tx, item.ProductID, -item.Quantity, domain.MovementTypeSale, &sale.ID, nil, settings.AllowNegativeStock); err != nil {
				return err
			}
		}

		if initialPaid.IsPositive() {
			if _, err := recordPayment(ctx, tx, sale.SaleDate, domain.Payment{
				Type:           domain.PaymentTypeReceipt,
				SaleID:         &sale.ID,
				CustomerID:     input.CustomerID,
				Amount:         initialPaid,
				Method:         input.PaymentMethod,
				TransactionRef: input.TransactionRef,
			}); err != nil {
				return err
			}
		}

		if customer != nil {
			if err := tx.AddCustomerPurchases(ctx, customer.ID, sale.TotalAmount); err != nil {
				return err
			}
			customer.TotalPurchases = customer.TotalPurchases.Add(sale.TotalAmount)
		}

		sale.ApplyPaid(initialPaid)
		return audit(ctx, tx, "sale.created", "sale", &sale.ID,
			fmt.Sprintf("%s total %s", sale.InvoiceNumber, sale.TotalAmount.StringFixed(pricing.Scale)))
	})
	if err != nil {
		if input.IdempotencyKey != nil && errors.Is(err, repository.ErrDuplicate) {
			existing, lookupErr := s.store.FindSaleByIdempotencyKey(ctx, *input.IdempotencyKey)
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create sale: %w", err)
	}

	s.notifier.SaleRecorded(sale, customer)
	return &sale, true, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.store.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "unknown status %q", filter.Status)
	}
	return s.store.ListSales(ctx, filter)
}

// UpdateSale applies an edit of status and/or paid amount. A new paid amount
// is booked as an adjustment carrying the difference; totals are never
// re-priced.
func (s *Service) UpdateSale(ctx context.Context, id int64, input UpdateSaleInput) (*domain.Sale, error) {
	if input.Status == nil && input.PaidAmount == nil {
		return nil, invalid("", "status or paid_amount is required")
	}
	if input.Status != nil && !input.Status.Valid() {
		return nil, invalid("status", "unknown status %q", *input.Status)
	}
	var target decimal.Decimal
	if input.PaidAmount != nil {
		target = pricing.Round(*input.PaidAmount)
		if target.IsNegative() {
			return nil, invalid("paid_amount", "must not be negative")
		}
	}

	var updated *domain.Sale
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status == domain.SaleStatusCancelled {
			return fmt.Errorf("sale %s is cancelled: %w", sale.InvoiceNumber, ErrInvalidTransition)
		}

		if input.PaidAmount != nil {
			if delta := target.Sub(sale.PaidAmount); !delta.IsZero() {
				if _, err := recordPayment(ctx, tx, s.now(), domain.Payment{
					Type:       domain.PaymentTypeAdjustment,
					SaleID:     &sale.ID,
					CustomerID: sale.CustomerID,
					Amount:     delta,
					Method:     sale.PaymentMethod,
				}); err != nil {
					return err
				}
				if err := audit(ctx, tx, "sale.paid_adjusted", "sale", &sale.ID,
					fmt.Sprintf("%s paid %s -> %s", sale.InvoiceNumber, sale.PaidAmount.StringFixed(pricing.Scale), target.StringFixed(pricing.Scale))); err != nil {
					return err
				}
			}
		}

		if input.Status != nil && *input.Status != sale.Status {
			if *input.Status == domain.SaleStatusCancelled {
				if err := compensateSale(ctx, tx, s.now(), sale, true); err != nil {
					return err
				}
			}
			if err := tx.UpdateSaleStatus(ctx, sale.ID, *input.Status); err != nil {
				return err
			}
			if err := audit(ctx, tx, "sale.status_changed", "sale", &sale.ID,
				fmt.Sprintf("%s %s -> %s", sale.InvoiceNumber, sale.Status, *input.Status)); err != nil {
				return err
			}
		}

		updated, err = tx.LockSale(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update sale %d: %w", id, err)
	}
	return updated, nil
}

// CancelSale moves a sale to cancelled, reversing its stock, payments and
// customer total.
func (s *Service) CancelSale(ctx context.Context, id int64) (*domain.Sale, error) {
	status := domain.SaleStatusCancelled
	return s.UpdateSale(ctx, id, UpdateSaleInput{Status: &status})
}

// DeleteSale removes a sale, its items and payments. Unless the sale was
// already cancelled its stock and customer effects are reversed first; the
// movement log keeps both the original and the compensating entries.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		sale, err := tx.LockSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status != domain.SaleStatusCancelled {
			if err := compensateSale(ctx, tx, s.now(), sale, false); err != nil {
				return err
			}
		}
		if err := tx.DeleteSale(ctx, sale.ID); err != nil {
			return err
		}
		return audit(ctx, tx, "sale.deleted", "sale", &sale.ID, sale.InvoiceNumber)
	})
	if err != nil {
		return fmt.Errorf("delete sale %d: %w", id, err)
	}
	return nil
}

// compensateSale writes the reversing records for a recorded sale: stock
// back in, money back out and the customer's lifetime total reduced.
func compensateSale(ctx context.Context, tx repository.Tx, now time.Time, sale *domain.Sale, reversePayments bool) error {
	for _, item := range sale.Items {
		if _, err := applyStockChange(ctx, tx, item.ProductID, item.Quantity, domain.MovementTypeSaleCancel, &sale.ID, nil, true); err != nil {
			return err
		}
	}

	if reversePayments {
		paid, err := tx.SumPayments(ctx, sale.ID)
		if err != nil {
			return err
		}
		if !paid.IsZero() {
			if _, err := recordPayment(ctx, tx, now, domain.Payment{
				Type:       domain.PaymentTypeReversal,
				SaleID:     &sale.ID,
				CustomerID: sale.CustomerID,
				Amount:     paid.Neg(),
				Method:     sale.PaymentMethod,
			}); err != nil {
				return err
			}
		}
	}

	if sale.CustomerID != nil {
		if err := tx.AddCustomerPurchases(ctx, *sale.CustomerID, sale.TotalAmount.Neg()); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return nil
}
