package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore keeps money as exact decimal text, so sums are done in Go
// rather than with SQL arithmetic.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapSQLiteError(err))
	}
	return nil
}

func (s *SQLiteStore) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return sqliteLoadSale(ctx, s.db, "id = ?", id)
}

func (s *SQLiteStore) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	return sqliteLoadSale(ctx, s.db, "idempotency_key = ?", key)
}

func (s *SQLiteStore) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	query := `SELECT ` + sqliteSaleColumns + ` FROM sales WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.CustomerID != nil {
		query += " AND customer_id = ?"
		args = append(args, *filter.CustomerID)
	}
	if filter.From != nil {
		query += " AND sale_date >= ?"
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		query += " AND sale_date < ?"
		args = append(args, filter.To.UTC())
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, normalizeLimit(filter.Limit), normalizeOffset(filter.Offset))

	var rows []sqliteSaleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Sale{}, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	paidQuery, paidArgs, err := sqlx.In(`SELECT sale_id, amount FROM payments WHERE sale_id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build payments query: %w", err)
	}
	var amounts []struct {
		SaleID int64           `db:"sale_id"`
		Amount decimal.Decimal `db:"amount"`
	}
	if err := s.db.SelectContext(ctx, &amounts, s.db.Rebind(paidQuery), paidArgs...); err != nil {
		return nil, fmt.Errorf("list sale payments: %w", err)
	}
	paid := make(map[int64]decimal.Decimal, len(rows))
	for _, a := range amounts {
		paid[a.SaleID] = paid[a.SaleID].Add(a.Amount)
	}

	sales := make([]domain.Sale, 0, len(rows))
	for _, r := range rows {
		sales = append(sales, r.toDomain(paid[r.ID]))
	}
	return sales, nil
}

func (s *SQLiteStore) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	var rows []sqlitePaymentRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT
			id,
			payment_number,
			type,
			sale_id,
			customer_id,
			amount,
			method,
			transaction_ref,
			paid_at,
			created_at
		FROM payments
		WHERE sale_id = ?
		ORDER BY id ASC
	`, saleID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	payments := make([]domain.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, domain.Payment{
			ID:             r.ID,
			PaymentNumber:  r.PaymentNumber,
			Type:           domain.PaymentType(r.Type),
			SaleID:         nullInt64Ptr(r.SaleID),
			CustomerID:     nullInt64Ptr(r.CustomerID),
			Amount:         r.Amount,
			Method:         r.Method,
			TransactionRef: nullStringPtr(r.TransactionRef),
			PaidAt:         r.PaidAt,
			CreatedAt:      r.CreatedAt,
		})
	}
	return payments, nil
}

func (s *SQLiteStore) GetInventory(ctx context.Context, productID int64) (*domain.InventoryLevel, error) {
	var row struct {
		ProductID int64     `db:"product_id"`
		Quantity  int       `db:"quantity"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT product_id, quantity, updated_at
		FROM inventory
		WHERE product_id = ?
	`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory %d: %w", productID, err)
	}
	return &domain.InventoryLevel{ProductID: row.ProductID, Quantity: row.Quantity, UpdatedAt: row.UpdatedAt}, nil
}

func (s *SQLiteStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	query := `
		SELECT id, product_id, quantity_delta, movement_type, sale_id, notes, created_at
		FROM inventory_movements
		WHERE 1=1`
	args := []any{}
	if filter.ProductID != nil {
		query += " AND product_id = ?"
		args = append(args, *filter.ProductID)
	}
	if filter.SaleID != nil {
		query += " AND sale_id = ?"
		args = append(args, *filter.SaleID)
	}
	query += " ORDER BY id ASC LIMIT ? OFFSET ?"
	args = append(args, normalizeLimit(filter.Limit), normalizeOffset(filter.Offset))

	var rows []struct {
		ID            int64          `db:"id"`
		ProductID     int64          `db:"product_id"`
		QuantityDelta int            `db:"quantity_delta"`
		MovementType  string         `db:"movement_type"`
		SaleID        sql.NullInt64  `db:"sale_id"`
		Notes         sql.NullString `db:"notes"`
		CreatedAt     time.Time      `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	movements := make([]domain.InventoryMovement, 0, len(rows))
	for _, r := range rows {
		movements = append(movements, domain.InventoryMovement{
			ID:            r.ID,
			ProductID:     r.ProductID,
			QuantityDelta: r.QuantityDelta,
			MovementType:  domain.MovementType(r.MovementType),
			SaleID:        nullInt64Ptr(r.SaleID),
			Notes:         nullStringPtr(r.Notes),
			CreatedAt:     r.CreatedAt,
		})
	}
	return movements, nil
}

func (s *SQLiteStore) CreateCustomer(ctx context.Context, input CustomerInput) (domain.Customer, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (name, email, phone, total_purchases, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, input.Name, input.Email, input.Phone, decimal.Zero, now, now)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("create customer: %w", mapSQLiteError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Customer{}, fmt.Errorf("create customer id: %w", err)
	}
	customer, err := sqliteGetCustomer(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *SQLiteStore) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return sqliteGetCustomer(ctx, s.db, id)
}

func (s *SQLiteStore) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	return sqliteGetSettings(ctx, s.db)
}

func (s *SQLiteStore) UpdateSettings(ctx context.Context, patch SettingsPatch) (domain.StoreSettings, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE store_settings
		SET
			tax_enabled = COALESCE(?, tax_enabled),
			tax_rate = COALESCE(?, tax_rate),
			allow_negative_stock = COALESCE(?, allow_negative_stock),
			updated_at = ?
		WHERE id = 1
	`, patch.TaxEnabled, patch.TaxRate, patch.AllowNegativeStock, s.now())
	if err != nil {
		return domain.StoreSettings{}, fmt.Errorf("update settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.StoreSettings{}, ErrNotFound
	}
	return sqliteGetSettings(ctx, s.db)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit, offset int, search string) ([]domain.AuditEntry, error) {
	search = strings.TrimSpace(search)
	var rows []struct {
		ID         int64         `db:"id"`
		CreatedAt  time.Time     `db:"created_at"`
		Action     string        `db:"action"`
		EntityType string        `db:"entity_type"`
		EntityID   sql.NullInt64 `db:"entity_id"`
		Details    string        `db:"details"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, created_at, action, entity_type, entity_id, details
		FROM audit_log
		WHERE (? = '' OR action LIKE '%' || ? || '%' OR details LIKE '%' || ? || '%')
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, search, search, search, normalizeLimit(limit), normalizeOffset(offset)); err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, domain.AuditEntry{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt,
			Action:     r.Action,
			EntityType: r.EntityType,
			EntityID:   nullInt64Ptr(r.EntityID),
			Details:    r.Details,
		})
	}
	return entries, nil
}

func (s *SQLiteStore) CountAudit(ctx context.Context, search string) (int, error) {
	search = strings.TrimSpace(search)
	var count int
	if err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM audit_log
		WHERE (? = '' OR action LIKE '%' || ? || '%' OR details LIKE '%' || ? || '%')
	`, search, search, search); err != nil {
		return 0, fmt.Errorf("count audit: %w", err)
	}
	return count, nil
}

type sqliteTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (t *sqliteTx) NextSequence(ctx context.Context, kind string) (int64, error) {
	var value int64
	if err := t.tx.GetContext(ctx, &value, `
		INSERT INTO document_sequences (kind, last_value)
		VALUES (?, 1)
		ON CONFLICT (kind)
		DO UPDATE SET last_value = last_value + 1
		RETURNING last_value
	`, kind); err != nil {
		return 0, fmt.Errorf("advance %s sequence: %w", kind, err)
	}
	return value, nil
}

func (t *sqliteTx) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	return sqliteGetSettings(ctx, t.tx)
}

func (t *sqliteTx) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return sqliteGetCustomer(ctx, t.tx, id)
}

func (t *sqliteTx) AddCustomerPurchases(ctx context.Context, customerID int64, amount decimal.Decimal) error {
	var current decimal.Decimal
	err := t.tx.GetContext(ctx, &current, `SELECT total_purchases FROM customers WHERE id = ?`, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load customer %d purchases: %w", customerID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		UPDATE customers
		SET total_purchases = ?, updated_at = ?
		WHERE id = ?
	`, current.Add(amount), t.now(), customerID); err != nil {
		return fmt.Errorf("update customer %d purchases: %w", customerID, err)
	}
	return nil
}

func (t *sqliteTx) InsertSale(ctx context.Context, sale *domain.Sale) error {
	now := t.now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			invoice_number,
			sale_date,
			customer_id,
			subtotal,
			discount_amount,
			global_discount_percent,
			tax_enabled,
			tax_amount,
			total_amount,
			amount_tendered,
			payment_method,
			status,
			notes,
			idempotency_key,
			created_at,
			updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sale.InvoiceNumber,
		sale.SaleDate.UTC(),
		sale.CustomerID,
		sale.Subtotal,
		sale.DiscountAmount,
		sale.GlobalDiscountPercent,
		sale.TaxEnabled,
		sale.TaxAmount,
		sale.TotalAmount,
		sale.AmountTendered,
		sale.PaymentMethod,
		string(sale.Status),
		sale.Notes,
		sale.IdempotencyKey,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", mapSQLiteError(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert sale id: %w", err)
	}
	sale.ID = id
	sale.CreatedAt = now
	sale.UpdatedAt = now
	return nil
}

func (t *sqliteTx) InsertSaleItems(ctx context.Context, saleID int64, items []domain.SaleItem) error {
	for i := range items {
		item := &items[i]
		item.SaleID = saleID
		res, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id,
				position,
				product_id,
				quantity,
				unit_price,
				item_discount,
				discount_amount,
				tax_rate,
				tax_amount,
				line_total
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			saleID,
			item.Position,
			item.ProductID,
			item.Quantity,
			item.UnitPrice,
			item.ItemDiscount,
			item.DiscountAmount,
			item.TaxRate,
			item.TaxAmount,
			item.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert sale item %d: %w", item.Position, err)
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert sale item %d id: %w", item.Position, err)
		}
	}
	return nil
}

// LockSale relies on SQLite's single writer for exclusion.
func (t *sqliteTx) LockSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return sqliteLoadSale(ctx, t.tx, "id = ?", id)
}

func (t *sqliteTx) UpdateSaleStatus(ctx context.Context, id int64, status domain.SaleStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales
		SET status = ?, updated_at = ?
		WHERE id = ?
	`, string(status), t.now(), id)
	if err != nil {
		return fmt.Errorf("update sale %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) DeleteSale(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sale %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	now := t.now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO payments (
			payment_number,
			type,
			sale_id,
			customer_id,
			amount,
			method,
			transaction_ref,
			paid_at,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		payment.PaymentNumber,
		string(payment.Type),
		payment.SaleID,
		payment.CustomerID,
		payment.Amount,
		payment.Method,
		payment.TransactionRef,
		payment.PaidAt.UTC(),
		now,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", mapSQLiteError(err))
	}
	if payment.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert payment id: %w", err)
	}
	payment.CreatedAt = now
	return nil
}

func (t *sqliteTx) SumPayments(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	return sqliteSumPayments(ctx, t.tx, saleID)
}

func (t *sqliteTx) ApplyInventoryDelta(ctx context.Context, productID int64, delta int, allowNegative bool) (int, error) {
	var quantity int
	if err := t.tx.GetContext(ctx, &quantity, `
		INSERT INTO inventory (product_id, quantity, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (product_id)
		DO UPDATE SET
			quantity = quantity + excluded.quantity,
			updated_at = excluded.updated_at
		RETURNING quantity
	`, productID, delta, t.now()); err != nil {
		return 0, fmt.Errorf("apply inventory delta for product %d: %w", productID, err)
	}
	if !allowNegative && delta < 0 && quantity < 0 {
		return quantity, fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
	}
	return quantity, nil
}

func (t *sqliteTx) InsertMovement(ctx context.Context, movement *domain.InventoryMovement) error {
	now := t.now()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (product_id, quantity_delta, movement_type, sale_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		movement.ProductID,
		movement.QuantityDelta,
		string(movement.MovementType),
		movement.SaleID,
		movement.Notes,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert movement for product %d: %w", movement.ProductID, err)
	}
	if movement.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert movement id: %w", err)
	}
	movement.CreatedAt = now
	return nil
}

func (t *sqliteTx) InsertAudit(ctx context.Context, entry domain.AuditEntry) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO audit_log (created_at, action, entity_type, entity_id, details)
		VALUES (?, ?, ?, ?, ?)
	`, t.now(), entry.Action, entry.EntityType, entry.EntityID, auditDetails(entry.Details)); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const sqliteSaleColumns = `
	id,
	invoice_number,
	sale_date,
	customer_id,
	subtotal,
	discount_amount,
	global_discount_percent,
	tax_enabled,
	tax_amount,
	total_amount,
	amount_tendered,
	payment_method,
	status,
	notes,
	idempotency_key,
	created_at,
	updated_at
`

type sqliteSaleRow struct {
	ID                    int64           `db:"id"`
	InvoiceNumber         string          `db:"invoice_number"`
	SaleDate              time.Time       `db:"sale_date"`
	CustomerID            sql.NullInt64   `db:"customer_id"`
	Subtotal              decimal.Decimal `db:"subtotal"`
	DiscountAmount        decimal.Decimal `db:"discount_amount"`
	GlobalDiscountPercent decimal.Decimal `db:"global_discount_percent"`
	TaxEnabled            bool            `db:"tax_enabled"`
	TaxAmount             decimal.Decimal `db:"tax_amount"`
	TotalAmount           decimal.Decimal `db:"total_amount"`
	AmountTendered        decimal.Decimal `db:"amount_tendered"`
	PaymentMethod         string          `db:"payment_method"`
	Status                string          `db:"status"`
	Notes                 sql.NullString  `db:"notes"`
	IdempotencyKey        sql.NullString  `db:"idempotency_key"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

func (r sqliteSaleRow) toDomain(paid decimal.Decimal) domain.Sale {
	sale := domain.Sale{
		ID:                    r.ID,
		InvoiceNumber:         r.InvoiceNumber,
		SaleDate:              r.SaleDate,
		CustomerID:            nullInt64Ptr(r.CustomerID),
		Subtotal:              r.Subtotal,
		DiscountAmount:        r.DiscountAmount,
		GlobalDiscountPercent: r.GlobalDiscountPercent,
		TaxEnabled:            r.TaxEnabled,
		TaxAmount:             r.TaxAmount,
		TotalAmount:           r.TotalAmount,
		AmountTendered:        r.AmountTendered,
		PaymentMethod:         r.PaymentMethod,
		Status:                domain.SaleStatus(r.Status),
		Notes:                 nullStringPtr(r.Notes),
		IdempotencyKey:        nullStringPtr(r.IdempotencyKey),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	sale.ApplyPaid(paid)
	return sale
}

type sqliteItemRow struct {
	ID             int64           `db:"id"`
	SaleID         int64           `db:"sale_id"`
	Position       int             `db:"position"`
	ProductID      int64           `db:"product_id"`
	Quantity       int             `db:"quantity"`
	UnitPrice      decimal.Decimal `db:"unit_price"`
	ItemDiscount   decimal.Decimal `db:"item_discount"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	TaxRate        decimal.Decimal `db:"tax_rate"`
	TaxAmount      decimal.Decimal `db:"tax_amount"`
	LineTotal      decimal.Decimal `db:"line_total"`
}

type sqlitePaymentRow struct {
	ID             int64           `db:"id"`
	PaymentNumber  string          `db:"payment_number"`
	Type           string          `db:"type"`
	SaleID         sql.NullInt64   `db:"sale_id"`
	CustomerID     sql.NullInt64   `db:"customer_id"`
	Amount         decimal.Decimal `db:"amount"`
	Method         string          `db:"method"`
	TransactionRef sql.NullString  `db:"transaction_ref"`
	PaidAt         time.Time       `db:"paid_at"`
	CreatedAt      time.Time       `db:"created_at"`
}

func sqliteLoadSale(ctx context.Context, q sqlx.QueryerContext, where string, arg any) (*domain.Sale, error) {
	var row sqliteSaleRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+sqliteSaleColumns+` FROM sales WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}

	paid, err := sqliteSumPayments(ctx, q, row.ID)
	if err != nil {
		return nil, err
	}
	sale := row.toDomain(paid)

	var items []sqliteItemRow
	if err := sqlx.SelectContext(ctx, q, &items, `
		SELECT
			id,
			sale_id,
			position,
			product_id,
			quantity,
			unit_price,
			item_discount,
			discount_amount,
			tax_rate,
			tax_amount,
			line_total
		FROM sale_items
		WHERE sale_id = ?
		ORDER BY position ASC
	`, sale.ID); err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	sale.Items = make([]domain.SaleItem, 0, len(items))
	for _, it := range items {
		sale.Items = append(sale.Items, domain.SaleItem(it))
	}
	return &sale, nil
}

func sqliteSumPayments(ctx context.Context, q sqlx.QueryerContext, saleID int64) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := sqlx.SelectContext(ctx, q, &amounts, `SELECT amount FROM payments WHERE sale_id = ?`, saleID); err != nil {
		return decimal.Zero, fmt.Errorf("sum payments for sale %d: %w", saleID, err)
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

func sqliteGetCustomer(ctx context.Context, q sqlx.QueryerContext, id int64) (*domain.Customer, error) {
	var row struct {
		ID             int64           `db:"id"`
		Name           string          `db:"name"`
		Email          sql.NullString  `db:"email"`
		Phone          sql.NullString  `db:"phone"`
		TotalPurchases decimal.Decimal `db:"total_purchases"`
		CreatedAt      time.Time       `db:"created_at"`
		UpdatedAt      time.Time       `db:"updated_at"`
	}
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT id, name, email, phone, total_purchases, created_at, updated_at
		FROM customers
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %d: %w", id, err)
	}
	return &domain.Customer{
		ID:             row.ID,
		Name:           row.Name,
		Email:          nullStringPtr(row.Email),
		Phone:          nullStringPtr(row.Phone),
		TotalPurchases: row.TotalPurchases,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func sqliteGetSettings(ctx context.Context, q sqlx.QueryerContext) (domain.StoreSettings, error) {
	var row struct {
		TaxEnabled         bool            `db:"tax_enabled"`
		TaxRate            decimal.Decimal `db:"tax_rate"`
		AllowNegativeStock bool            `db:"allow_negative_stock"`
		UpdatedAt          time.Time       `db:"updated_at"`
	}
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT tax_enabled, tax_rate, allow_negative_stock, updated_at
		FROM store_settings
		WHERE id = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoreSettings{}, fmt.Errorf("store settings: %w", ErrNotFound)
	}
	if err != nil {
		return domain.StoreSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return domain.StoreSettings{
		TaxEnabled:         row.TaxEnabled,
		TaxRate:            row.TaxRate,
		AllowNegativeStock: row.AllowNegativeStock,
		UpdatedAt:          row.UpdatedAt,
	}, nil
}

func mapSQLiteError(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch code := sqliteErr.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%s: %w", sqliteErr.Error(), ErrDuplicate)
	case code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"):
		return fmt.Errorf("%s: %w", sqliteErr.Error(), ErrDuplicate)
	}
	return err
}
