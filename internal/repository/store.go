package repository

import (
	"context"
	"errors"

	"retailpos/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate")
)

// Store is the persistence contract shared by the PostgreSQL and SQLite
// backends. Reads outside WithinTx see committed data only.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error)

	GetInventory(ctx context.Context, productID int64) (*domain.InventoryLevel, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error)

	CreateCustomer(ctx context.Context, input CustomerInput) (domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)

	GetSettings(ctx context.Context) (domain.StoreSettings, error)
	UpdateSettings(ctx context.Context, patch SettingsPatch) (domain.StoreSettings, error)

	ListAudit(ctx context.Context, limit, offset int, search string) ([]domain.AuditEntry, error)
	CountAudit(ctx context.Context, search string) (int, error)

	Close()
}

// Tx is the set of writes and locked reads available inside one database
// transaction. Everything done through a Tx commits or rolls back together.
type Tx interface {
	NextSequence(ctx context.Context, kind string) (int64, error)
	GetSettings(ctx context.Context) (domain.StoreSettings, error)

	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	AddCustomerPurchases(ctx context.Context, customerID int64, amount decimal.Decimal) error

	InsertSale(ctx context.Context, sale *domain.Sale) error
	InsertSaleItems(ctx context.Context, saleID int64, items []domain.SaleItem) error
	LockSale(ctx context.Context, id int64) (*domain.Sale, error)
	UpdateSaleStatus(ctx context.Context, id int64, status domain.SaleStatus) error
	DeleteSale(ctx context.Context, id int64) error

	InsertPayment(ctx context.Context, payment *domain.Payment) error
	SumPayments(ctx context.Context, saleID int64) (decimal.Decimal, error)

	ApplyInventoryDelta(ctx context.Context, productID int64, delta int, allowNegative bool) (int, error)
	InsertMovement(ctx context.Context, movement *domain.InventoryMovement) error

	InsertAudit(ctx context.Context, entry domain.AuditEntry) error
}

type CustomerInput struct {
	Name  string
	Email *string
	Phone *string
}

type SettingsPatch struct {
	TaxEnabled         *bool
	TaxRate            *decimal.Decimal
	AllowNegativeStock *bool
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func auditDetails(details string) string {
	if details == "" {
		return "-"
	}
	return details
}
