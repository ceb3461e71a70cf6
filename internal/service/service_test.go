package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"retailpos/internal/db"
	"retailpos/internal/domain"
	"retailpos/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sales []domain.Sale
}

func (n *recordingNotifier) SaleRecorded(sale domain.Sale, _ *domain.Customer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sales = append(n.sales, sale)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sales)
}

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, repository.Store, *recordingNotifier) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunSQLiteMigrations(ctx, conn))
	store := repository.NewSQLiteStore(conn)
	t.Cleanup(store.Close)

	notifier := &recordingNotifier{}
	svc := New(store, WithNotifier(notifier), WithClock(func() time.Time { return fixedNow }))
	return svc, store, notifier
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func setTax(t *testing.T, svc *Service, enabled bool, allowNegative bool) {
	t.Helper()
	_, err := svc.UpdateSettings(context.Background(), repository.SettingsPatch{
		TaxEnabled:         &enabled,
		AllowNegativeStock: &allowNegative,
	})
	require.NoError(t, err)
}

func oneLineCart(tendered, percent string) CreateSaleInput {
	return CreateSaleInput{
		Items: []SaleItemInput{
			{ProductID: 1, Quantity: 2, UnitPrice: dec("1000"), TaxRate: decPtr("17")},
		},
		PaymentMethod:   "cash",
		AmountTendered:  dec(tendered),
		DiscountPercent: dec(percent),
	}
}
