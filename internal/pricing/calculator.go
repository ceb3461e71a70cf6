// Package pricing turns a cart into reconciled line and invoice amounts.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits of the currency's smallest unit.
const Scale int32 = 2

var (
	ErrEmptyCart       = errors.New("cart has no items")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
	ErrInvalidDiscount = errors.New("item discount must be between 0 and the unit price")
	ErrInvalidTaxRate  = errors.New("tax rate must not be negative")
	ErrInvalidPercent  = errors.New("global discount percent must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

type Item struct {
	ProductID    int64
	Quantity     int
	UnitPrice    decimal.Decimal
	ItemDiscount decimal.Decimal // per unit
	TaxRate      decimal.Decimal // percent
}

type Options struct {
	TaxEnabled            bool
	GlobalDiscountPercent decimal.Decimal
}

type Line struct {
	Item
	LineGross      decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	LineTotal      decimal.Decimal
}

type Totals struct {
	Lines          []Line
	Subtotal       decimal.Decimal
	ItemDiscount   decimal.Decimal
	GlobalDiscount decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Round rounds half away from zero to the currency's smallest unit.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Validate checks a cart without computing anything.
func Validate(items []Item, opts Options) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	if opts.GlobalDiscountPercent.IsNegative() || opts.GlobalDiscountPercent.GreaterThan(hundred) {
		return ErrInvalidPercent
	}
	for i, it := range items {
		switch {
		case it.Quantity <= 0:
			return fmt.Errorf("item %d: %w", i, ErrInvalidQuantity)
		case it.UnitPrice.IsNegative():
			return fmt.Errorf("item %d: %w", i, ErrInvalidPrice)
		case it.ItemDiscount.IsNegative() || it.ItemDiscount.GreaterThan(it.UnitPrice):
			return fmt.Errorf("item %d: %w", i, ErrInvalidDiscount)
		case it.TaxRate.IsNegative():
			return fmt.Errorf("item %d: %w", i, ErrInvalidTaxRate)
		}
	}
	return nil
}

// Calculate prices every line in cart order and aggregates the invoice.
//
// Each line keeps full precision until its own amounts are rounded, and the
// invoice total is the sum of the rounded line totals. The reported discount
// is derived from subtotal + tax - total so the reporting identity holds
// exactly after rounding.
func Calculate(items []Item, opts Options) (Totals, error) {
	if err := Validate(items, opts); err != nil {
		return Totals{}, err
	}

	keep := hundred.Sub(opts.GlobalDiscountPercent).Div(hundred)
	out := Totals{Lines: make([]Line, 0, len(items))}

	for _, it := range items {
		qty := decimal.NewFromInt(int64(it.Quantity))
		gross := it.UnitPrice.Mul(qty)
		afterItem := gross.Sub(it.ItemDiscount.Mul(qty))
		afterGlobal := afterItem.Mul(keep)

		tax := decimal.Zero
		if opts.TaxEnabled {
			tax = afterGlobal.Mul(it.TaxRate).Div(hundred)
		}

		line := Line{
			Item:           it,
			LineGross:      Round(gross),
			DiscountAmount: Round(gross.Sub(afterGlobal)),
			TaxAmount:      Round(tax),
			LineTotal:      Round(afterGlobal.Add(tax)),
		}
		out.Lines = append(out.Lines, line)

		out.Subtotal = out.Subtotal.Add(line.LineGross)
		out.ItemDiscount = out.ItemDiscount.Add(Round(gross.Sub(afterItem)))
		out.TaxAmount = out.TaxAmount.Add(line.TaxAmount)
		out.TotalAmount = out.TotalAmount.Add(line.LineTotal)
	}

	if out.TotalAmount.IsNegative() {
		out.TotalAmount = decimal.Zero
	}
	out.DiscountAmount = clamp(out.Subtotal.Add(out.TaxAmount).Sub(out.TotalAmount))
	out.GlobalDiscount = clamp(out.DiscountAmount.Sub(out.ItemDiscount))
	return out, nil
}

// CrossCheck reports whether subtotal - discount + tax reproduces the total.
func (t Totals) CrossCheck() bool {
	return t.Subtotal.Sub(t.DiscountAmount).Add(t.TaxAmount).Equal(t.TotalAmount)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
