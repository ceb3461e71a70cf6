package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"retailpos/internal/domain"
	"retailpos/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSaleFullyPaid(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()

	sale, created, err := svc.CreateSale(ctx, oneLineCart("2340", "0"))
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, "INV-000001", sale.InvoiceNumber)
	assertDec(t, "2000", sale.Subtotal, "subtotal")
	assertDec(t, "340", sale.TaxAmount, "tax")
	assertDec(t, "2340", sale.TotalAmount, "total")
	assertDec(t, "2340", sale.PaidAmount, "paid")
	assertDec(t, "0", sale.BalanceAmount, "balance")
	assert.Equal(t, domain.SaleStatusCompleted, sale.Status)
	assert.Equal(t, domain.PaymentStatusPaid, sale.PaymentStatus)
	require.Len(t, sale.Items, 1)
	assertDec(t, "2340", sale.Items[0].LineTotal, "line total")

	stored, err := store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assertDec(t, "2340", stored.PaidAmount, "stored paid")
	assert.Equal(t, domain.PaymentStatusPaid, stored.PaymentStatus)

	level, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, -2, level.Quantity)

	movements, err := svc.ListMovements(ctx, domain.MovementFilter{SaleID: &sale.ID})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, -2, movements[0].QuantityDelta)
	assert.Equal(t, domain.MovementTypeSale, movements[0].MovementType)

	payments, err := svc.ListPayments(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "PAY-000001", payments[0].PaymentNumber)
	assert.Equal(t, domain.PaymentTypeReceipt, payments[0].Type)

	assert.Equal(t, 1, notifier.count())
}

func TestCreateSaleGlobalDiscount(t *testing.T) {
	svc, _, _ := newTestService(t)

	sale, _, err := svc.CreateSale(context.Background(), oneLineCart("0", "10"))
	require.NoError(t, err)
	assertDec(t, "306", sale.TaxAmount, "tax")
	assertDec(t, "2106", sale.TotalAmount, "total")
	assertDec(t, "200", sale.DiscountAmount, "discount")
	assertDec(t, "2106", sale.Items[0].LineTotal, "line total")
	assert.Equal(t, domain.SaleStatusPending, sale.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, sale.PaymentStatus)
}

func TestCreateSalePartialTender(t *testing.T) {
	svc, _, _ := newTestService(t)

	sale, _, err := svc.CreateSale(context.Background(), oneLineCart("1000", "0"))
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusPending, sale.Status)
	assert.Equal(t, domain.PaymentStatusPartial, sale.PaymentStatus)
	assertDec(t, "1340", sale.BalanceAmount, "balance")
	assert.True(t, sale.BalanceAmount.IsPositive())
}

func TestCreateSaleOverTenderRecordsTotalAndChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sale, _, err := svc.CreateSale(ctx, oneLineCart("2500", "0"))
	require.NoError(t, err)
	assertDec(t, "2340", sale.PaidAmount, "paid")
	assertDec(t, "160", sale.ChangeDue, "change")
	assertDec(t, "2500", sale.AmountTendered, "tendered")

	payments, err := svc.ListPayments(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assertDec(t, "2340", payments[0].Amount, "payment")
}

func TestCreateSaleTaxDisabledBySettings(t *testing.T) {
	svc, _, _ := newTestService(t)
	setTax(t, svc, false, true)

	sale, _, err := svc.CreateSale(context.Background(), oneLineCart("0", "0"))
	require.NoError(t, err)
	assert.False(t, sale.TaxEnabled)
	assert.True(t, sale.TaxAmount.IsZero())
	for _, item := range sale.Items {
		assert.True(t, item.TaxAmount.IsZero())
	}
	assertDec(t, "2000", sale.TotalAmount, "total")
}

func TestCreateSaleFullDiscountIsPaid(t *testing.T) {
	svc, _, _ := newTestService(t)
	setTax(t, svc, false, true)

	sale, _, err := svc.CreateSale(context.Background(), oneLineCart("0", "100"))
	require.NoError(t, err)
	assert.True(t, sale.TotalAmount.IsZero())
	assert.Equal(t, domain.SaleStatusCompleted, sale.Status)
	assert.Equal(t, domain.PaymentStatusPaid, sale.PaymentStatus)

	payments, err := svc.ListPayments(context.Background(), sale.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestCreateSaleUsesStoreTaxRate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.UpdateSettings(ctx, repository.SettingsPatch{TaxRate: decPtr("5")})
	require.NoError(t, err)

	sale, _, err := svc.CreateSale(ctx, CreateSaleInput{
		Items: []SaleItemInput{{ProductID: 3, Quantity: 1, UnitPrice: dec("40")}},
	})
	require.NoError(t, err)
	assertDec(t, "5", sale.Items[0].TaxRate, "rate")
	assertDec(t, "42", sale.TotalAmount, "total")
	assert.Equal(t, "cash", sale.PaymentMethod)
}

func TestCreateSaleInsufficientStockRollsBack(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	setTax(t, svc, true, false)

	_, err := svc.AdjustInventory(ctx, domain.InventoryAdjustment{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	_, _, err = svc.CreateSale(ctx, oneLineCart("2340", "0"))
	require.ErrorIs(t, err, repository.ErrInsufficientStock)

	sales, err := svc.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)

	level, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, level.Quantity)
	assert.Zero(t, notifier.count())

	_, err = svc.AdjustInventory(ctx, domain.InventoryAdjustment{ProductID: 1, Quantity: 5})
	require.NoError(t, err)
	sale, _, err := svc.CreateSale(ctx, oneLineCart("2340", "0"))
	require.NoError(t, err)
	assert.Equal(t, "INV-000001", sale.InvoiceNumber)
}

func TestCreateSaleCustomer(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	missing := int64(42)
	in := oneLineCart("0", "0")
	in.CustomerID = &missing
	_, _, err := svc.CreateSale(ctx, in)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	customer, err := svc.CreateCustomer(ctx, repository.CustomerInput{Name: "  Ada  "})
	require.NoError(t, err)
	assert.Equal(t, "Ada", customer.Name)

	in.CustomerID = &customer.ID
	_, _, err = svc.CreateSale(ctx, in)
	require.NoError(t, err)
	_, _, err = svc.CreateSale(ctx, in)
	require.NoError(t, err)

	got, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assertDec(t, "4680", got.TotalPurchases, "total purchases")
}

func TestCreateSaleValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	bad := "not-a-uuid"

	tests := []struct {
		name  string
		input CreateSaleInput
		field string
	}{
		{name: "no items", input: CreateSaleInput{}, field: "items"},
		{name: "zero quantity", input: CreateSaleInput{Items: []SaleItemInput{{ProductID: 1, Quantity: 0, UnitPrice: dec("1")}}}, field: "items"},
		{name: "missing product", input: CreateSaleInput{Items: []SaleItemInput{{Quantity: 1, UnitPrice: dec("1")}}}, field: "items[0].product_id"},
		{name: "discount above price", input: CreateSaleInput{Items: []SaleItemInput{{ProductID: 1, Quantity: 1, UnitPrice: dec("1"), Discount: dec("2")}}}, field: "items"},
		{name: "percent above 100", input: CreateSaleInput{Items: []SaleItemInput{{ProductID: 1, Quantity: 1, UnitPrice: dec("1")}}, DiscountPercent: dec("120")}, field: "discount_percent"},
		{name: "negative tender", input: CreateSaleInput{Items: []SaleItemInput{{ProductID: 1, Quantity: 1, UnitPrice: dec("1")}}, AmountTendered: dec("-1")}, field: "amount_tendered"},
		{name: "bad idempotency key", input: CreateSaleInput{Items: []SaleItemInput{{ProductID: 1, Quantity: 1, UnitPrice: dec("1")}}, IdempotencyKey: &bad}, field: "idempotency_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateSale(ctx, tt.input)
			require.Error(t, err)
			var v *ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.field, v.Field)
		})
	}

	sales, err := svc.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)

	movements, err := svc.ListMovements(ctx, domain.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestCreateSaleIdempotentReplay(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	key := "7C9E6679-7425-40DE-944B-E07FC1F90AE7"

	in := oneLineCart("2340", "0")
	in.IdempotencyKey = &key
	first, created, err := svc.CreateSale(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	again := oneLineCart("2340", "0")
	again.IdempotencyKey = &key
	second, created, err := svc.CreateSale(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, notifier.count())

	level, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, -2, level.Quantity)
}

func TestCreateSaleConcurrentInvoiceNumbersAreDistinct(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, _, err := svc.CreateSale(ctx, oneLineCart("2340", "0"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[sale.InvoiceNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, numbers, n)

	level, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, -2*n, level.Quantity)
}

func TestQuoteSaleDoesNotPersist(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	totals, err := svc.QuoteSale(ctx, oneLineCart("0", "10"))
	require.NoError(t, err)
	assertDec(t, "2106", totals.TotalAmount, "total")
	assert.True(t, totals.CrossCheck())

	sales, err := svc.ListSales(ctx, domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestUpdateSalePaidAmountUsesLedger(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sale, _, err := svc.CreateSale(ctx, oneLineCart("1000", "0"))
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusPending, sale.Status)

	updated, err := svc.UpdateSale(ctx, sale.ID, UpdateSaleInput{PaidAmount: decPtr("2340")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, domain.SaleStatusPending, updated.Status)
	assertDec(t, "0", updated.BalanceAmount, "balance")
	assertDec(t, "2340", updated.TotalAmount, "total")

	lowered, err := svc.UpdateSale(ctx, sale.ID, UpdateSaleInput{PaidAmount: decPtr("500")})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartial, lowered.PaymentStatus)
	assertDec(t, "1840", lowered.BalanceAmount, "balance")

	payments, err := svc.ListPayments(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, domain.PaymentTypeAdjustment, payments[1].Type)
	assertDec(t, "1340", payments[1].Amount, "raise")
	assertDec(t, "-1840", payments[2].Amount, "lower")

	sum := payments[0].Amount.Add(payments[1].Amount).Add(payments[2].Amount)
	assertDec(t, "500", sum, "ledger sum")

	completed := domain.SaleStatusCompleted
	final, err := svc.UpdateSale(ctx, sale.ID, UpdateSaleInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCompleted, final.Status)
	assert.Equal(t, domain.PaymentStatusPartial, final.PaymentStatus)
}

func TestUpdateSaleValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sale, _, err := svc.CreateSale(ctx, oneLineCart("0", "0"))
	require.NoError(t, err)

	_, err = svc.UpdateSale(ctx, sale.ID, UpdateSaleInput{})
	assert.True(t, IsValidation(err))

	unknown := domain.SaleStatus("shipped")
	_, err = svc.UpdateSale(ctx, sale.ID, UpdateSaleInput{Status: &unknown})
	assert.True(t, IsValidation(err))

	_, err = svc.UpdateSale(ctx, sale.ID, UpdateSaleInput{PaidAmount: decPtr("-1")})
	assert.True(t, IsValidation(err))

	_, err = svc.UpdateSale(ctx, sale.ID+1, UpdateSaleInput{PaidAmount: decPtr("1")})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCancelSaleCompensates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, repository.CustomerInput{Name: "Grace"})
	require.NoError(t, err)
	in := oneLineCart("1000", "0")
	in.CustomerID = &customer.ID
	sale, _, err := svc.CreateSale(ctx, in)
	require.NoError(t, err)

	cancelled, err := svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.PaidAmount.IsZero())

	level, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, level.Quantity)

	movements, err := svc.ListMovements(ctx, domain.MovementFilter{SaleID: &sale.ID})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, domain.MovementTypeSaleCancel, movements[1].MovementType)
	assert.Equal(t, 2, movements[1].QuantityDelta)

	payments, err := svc.ListPayments(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, domain.PaymentTypeReversal, payments[1].Type)
	assertDec(t, "-1000", payments[1].Amount, "reversal")

	got, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPurchases.IsZero())

	pending := domain.SaleStatusPending
	_, err = svc.UpdateSale(ctx, sale.ID, UpdateSaleInput{Status: &pending})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.CancelSale(ctx, sale.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.RecordPayment(ctx, sale.ID, RecordPaymentInput{Amount: dec("1"), Method: "cash"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteSaleCompensates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, repository.CustomerInput{Name: "Linus"})
	require.NoError(t, err)
	in := oneLineCart("2340", "0")
	in.CustomerID = &customer.ID
	sale, _, err := svc.CreateSale(ctx, in)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSale(ctx, sale.ID))

	_, err = svc.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = svc.ListPayments(ctx, sale.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	level, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, level.Quantity)

	movements, err := svc.ListMovements(ctx, domain.MovementFilter{SaleID: &sale.ID})
	require.NoError(t, err)
	assert.Len(t, movements, 2)

	got, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalPurchases.IsZero())

	assert.ErrorIs(t, svc.DeleteSale(ctx, sale.ID), repository.ErrNotFound)
}

func TestDeleteCancelledSaleDoesNotCompensateTwice(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sale, _, err := svc.CreateSale(ctx, oneLineCart("0", "0"))
	require.NoError(t, err)
	_, err = svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteSale(ctx, sale.ID))

	level, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, level.Quantity)
}

func TestRecordPayment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sale, _, err := svc.CreateSale(ctx, oneLineCart("340", "0"))
	require.NoError(t, err)

	ref := " card-7781 "
	p, err := svc.RecordPayment(ctx, sale.ID, RecordPaymentInput{Amount: dec("1000"), Method: "card", TransactionRef: &ref})
	require.NoError(t, err)
	assert.Equal(t, "PAY-000002", p.PaymentNumber)
	require.NotNil(t, p.TransactionRef)
	assert.Equal(t, "card-7781", *p.TransactionRef)

	_, err = svc.RecordPayment(ctx, sale.ID, RecordPaymentInput{Amount: dec("1000.01"), Method: "card"})
	assert.True(t, IsValidation(err))

	_, err = svc.RecordPayment(ctx, sale.ID, RecordPaymentInput{Amount: dec("0"), Method: "card"})
	assert.True(t, IsValidation(err))

	got, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assertDec(t, "1340", got.PaidAmount, "paid")
	assertDec(t, "1000", got.BalanceAmount, "balance")
	assert.Equal(t, domain.PaymentStatusPartial, got.PaymentStatus)
}

func TestSaleLineSumMatchesTotalAcrossCarts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		items := make([]SaleItemInput, i)
		for j := range items {
			items[j] = SaleItemInput{
				ProductID: int64(j + 1),
				Quantity:  j + 1,
				UnitPrice: dec(fmt.Sprintf("%d.%02d", 3*j+1, (17*i+j)%100)),
				TaxRate:   decPtr("8.25"),
			}
		}
		sale, _, err := svc.CreateSale(ctx, CreateSaleInput{Items: items, DiscountPercent: dec("12.5")})
		require.NoError(t, err)

		stored, err := svc.GetSale(ctx, sale.ID)
		require.NoError(t, err)
		var sum decimal.Decimal
		for _, it := range stored.Items {
			sum = sum.Add(it.LineTotal)
		}
		assert.Truef(t, sum.Equal(stored.TotalAmount), "sale %d: lines %s total %s", i, sum, stored.TotalAmount)
		assert.True(t, stored.Subtotal.Sub(stored.DiscountAmount).Add(stored.TaxAmount).Equal(stored.TotalAmount))
	}
}

func TestAuditTrail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sale, _, err := svc.CreateSale(ctx, oneLineCart("0", "0"))
	require.NoError(t, err)
	_, err = svc.CancelSale(ctx, sale.ID)
	require.NoError(t, err)

	entries, err := svc.ListAudit(ctx, 10, 0, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sale.status_changed", entries[0].Action)
	assert.Equal(t, "sale.created", entries[1].Action)

	count, err := svc.CountAudit(ctx, sale.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
