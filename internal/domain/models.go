package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusDraft     SaleStatus = "draft"
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusDraft, SaleStatusPending, SaleStatusCompleted, SaleStatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type PaymentType string

const (
	PaymentTypeReceipt    PaymentType = "receipt"
	PaymentTypeAdjustment PaymentType = "adjustment"
	PaymentTypeReversal   PaymentType = "reversal"
	PaymentTypeOther      PaymentType = "other"
)

type MovementType string

const (
	MovementTypeSale       MovementType = "sale"
	MovementTypeSaleCancel MovementType = "sale_cancel"
	MovementTypeAdjustment MovementType = "adjustment"
)

type Sale struct {
	ID                    int64           `json:"id"`
	InvoiceNumber         string          `json:"invoice_number"`
	SaleDate              time.Time       `json:"sale_date"`
	CustomerID            *int64          `json:"customer_id,omitempty"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	GlobalDiscountPercent decimal.Decimal `json:"global_discount_percent"`
	TaxEnabled            bool            `json:"tax_enabled"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	PaidAmount            decimal.Decimal `json:"paid_amount"`
	BalanceAmount         decimal.Decimal `json:"balance_amount"`
	AmountTendered        decimal.Decimal `json:"amount_tendered"`
	ChangeDue             decimal.Decimal `json:"change_due"`
	PaymentMethod         string          `json:"payment_method"`
	Status                SaleStatus      `json:"status"`
	PaymentStatus         PaymentStatus   `json:"payment_status"`
	Notes                 *string         `json:"notes,omitempty"`
	IdempotencyKey        *string         `json:"idempotency_key,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Items                 []SaleItem      `json:"items,omitempty"`
}

// ApplyPaid sets the paid projection and everything derived from it.
func (s *Sale) ApplyPaid(paid decimal.Decimal) {
	s.PaidAmount = paid
	s.BalanceAmount = BalanceAmount(s.TotalAmount, paid)
	s.PaymentStatus = DerivePaymentStatus(s.TotalAmount, paid)
	change := s.AmountTendered.Sub(s.TotalAmount)
	if change.IsNegative() {
		change = decimal.Zero
	}
	s.ChangeDue = change
}

type SaleItem struct {
	ID             int64           `json:"id"`
	SaleID         int64           `json:"sale_id"`
	Position       int             `json:"position"`
	ProductID      int64           `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	ItemDiscount   decimal.Decimal `json:"item_discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type Payment struct {
	ID             int64           `json:"id"`
	PaymentNumber  string          `json:"payment_number"`
	Type           PaymentType     `json:"type"`
	SaleID         *int64          `json:"sale_id,omitempty"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	TransactionRef *string         `json:"transaction_ref,omitempty"`
	PaidAt         time.Time       `json:"paid_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

type InventoryMovement struct {
	ID            int64        `json:"id"`
	ProductID     int64        `json:"product_id"`
	QuantityDelta int          `json:"quantity_delta"`
	MovementType  MovementType `json:"movement_type"`
	SaleID        *int64       `json:"sale_id,omitempty"`
	Notes         *string      `json:"notes,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type InventoryLevel struct {
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Customer struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Email          *string         `json:"email,omitempty"`
	Phone          *string         `json:"phone,omitempty"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type StoreSettings struct {
	TaxEnabled         bool            `json:"tax_enabled"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	AllowNegativeStock bool            `json:"allow_negative_stock"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type AuditEntry struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   *int64    `json:"entity_id,omitempty"`
	Details    string    `json:"details"`
}

type SaleFilter struct {
	Status     SaleStatus
	CustomerID *int64
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type MovementFilter struct {
	ProductID *int64
	SaleID    *int64
	Limit     int
	Offset    int
}

type InventoryAdjustment struct {
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Notes     *string `json:"notes,omitempty"`
}
