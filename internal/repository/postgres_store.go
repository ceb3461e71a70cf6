package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"retailpos/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return pgLoadSale(ctx, s.pool, "s.id = $1", id)
}

func (s *PostgresStore) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	return pgLoadSale(ctx, s.pool, "s.idempotency_key = $1", key)
}

func (s *PostgresStore) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	limit := normalizeLimit(filter.Limit)
	offset := normalizeOffset(filter.Offset)

	query := `SELECT ` + pgSaleColumns + ` FROM sales s WHERE 1=1`
	args := []any{}
	argIndex := 1
	if filter.Status != "" {
		query += fmt.Sprintf(" AND s.status = $%d", argIndex)
		args = append(args, string(filter.Status))
		argIndex++
	}
	if filter.CustomerID != nil {
		query += fmt.Sprintf(" AND s.customer_id = $%d", argIndex)
		args = append(args, *filter.CustomerID)
		argIndex++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND s.sale_date >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND s.sale_date < $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY s.id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanPgSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, nil
}

func (s *PostgresStore) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	rows, err := s.pool.Query(ctx, `
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
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		var (
			p           domain.Payment
			paymentSale sql.NullInt64
			customer    sql.NullInt64
			ref         sql.NullString
		)
		if err := rows.Scan(
			&p.ID,
			&p.PaymentNumber,
			&p.Type,
			&paymentSale,
			&customer,
			&p.Amount,
			&p.Method,
			&ref,
			&p.PaidAt,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.SaleID = nullInt64Ptr(paymentSale)
		p.CustomerID = nullInt64Ptr(customer)
		p.TransactionRef = nullStringPtr(ref)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (s *PostgresStore) GetInventory(ctx context.Context, productID int64) (*domain.InventoryLevel, error) {
	var level domain.InventoryLevel
	err := s.pool.QueryRow(ctx, `
		SELECT product_id, quantity, updated_at
		FROM inventory
		WHERE product_id = $1
	`, productID).Scan(&level.ProductID, &level.Quantity, &level.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory %d: %w", productID, err)
	}
	return &level, nil
}

func (s *PostgresStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	limit := normalizeLimit(filter.Limit)
	offset := normalizeOffset(filter.Offset)

	query := `
		SELECT id, product_id, quantity_delta, movement_type, sale_id, notes, created_at
		FROM inventory_movements
		WHERE 1=1`
	args := []any{}
	argIndex := 1
	if filter.ProductID != nil {
		query += fmt.Sprintf(" AND product_id = $%d", argIndex)
		args = append(args, *filter.ProductID)
		argIndex++
	}
	if filter.SaleID != nil {
		query += fmt.Sprintf(" AND sale_id = $%d", argIndex)
		args = append(args, *filter.SaleID)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var (
			m      domain.InventoryMovement
			saleID sql.NullInt64
			notes  sql.NullString
		)
		if err := rows.Scan(
			&m.ID,
			&m.ProductID,
			&m.QuantityDelta,
			&m.MovementType,
			&saleID,
			&notes,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.SaleID = nullInt64Ptr(saleID)
		m.Notes = nullStringPtr(notes)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}

func (s *PostgresStore) CreateCustomer(ctx context.Context, input CustomerInput) (domain.Customer, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone)
		VALUES ($1, $2, $3)
		RETURNING `+pgCustomerColumns,
		input.Name, input.Email, input.Phone,
	)
	customer, err := scanPgCustomer(row)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("create customer: %w", mapPgError(err))
	}
	return customer, nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return pgGetCustomer(ctx, s.pool, id, false)
}

func (s *PostgresStore) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	return pgGetSettings(ctx, s.pool)
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, patch SettingsPatch) (domain.StoreSettings, error) {
	var settings domain.StoreSettings
	err := s.pool.QueryRow(ctx, `
		UPDATE store_settings
		SET
			tax_enabled = COALESCE($1, tax_enabled),
			tax_rate = COALESCE($2, tax_rate),
			allow_negative_stock = COALESCE($3, allow_negative_stock),
			updated_at = NOW()
		WHERE id = 1
		RETURNING tax_enabled, tax_rate, allow_negative_stock, updated_at
	`, patch.TaxEnabled, patch.TaxRate, patch.AllowNegativeStock).Scan(
		&settings.TaxEnabled,
		&settings.TaxRate,
		&settings.AllowNegativeStock,
		&settings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoreSettings{}, ErrNotFound
	}
	if err != nil {
		return domain.StoreSettings{}, fmt.Errorf("update settings: %w", err)
	}
	return settings, nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit, offset int, search string) ([]domain.AuditEntry, error) {
	limit = normalizeLimit(limit)
	offset = normalizeOffset(offset)
	search = strings.TrimSpace(search)

	rows, err := s.pool.Query(ctx, `
		SELECT id, created_at, action, entity_type, entity_id, details
		FROM audit_log
		WHERE ($1 = '' OR action ILIKE '%' || $1 || '%' OR details ILIKE '%' || $1 || '%')
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e        domain.AuditEntry
			entityID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Action, &e.EntityType, &entityID, &e.Details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.EntityID = nullInt64Ptr(entityID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) CountAudit(ctx context.Context, search string) (int, error) {
	search = strings.TrimSpace(search)
	var count int
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)::int
		FROM audit_log
		WHERE ($1 = '' OR action ILIKE '%' || $1 || '%' OR details ILIKE '%' || $1 || '%')
	`, search).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit: %w", err)
	}
	return count, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) NextSequence(ctx context.Context, kind string) (int64, error) {
	var value int64
	if err := t.tx.QueryRow(ctx, `
		INSERT INTO document_sequences (kind, last_value)
		VALUES ($1, 1)
		ON CONFLICT (kind)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value
	`, kind).Scan(&value); err != nil {
		return 0, fmt.Errorf("advance %s sequence: %w", kind, err)
	}
	return value, nil
}

func (t *pgTx) GetSettings(ctx context.Context) (domain.StoreSettings, error) {
	return pgGetSettings(ctx, t.tx)
}

func (t *pgTx) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return pgGetCustomer(ctx, t.tx, id, true)
}

func (t *pgTx) AddCustomerPurchases(ctx context.Context, customerID int64, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE customers
		SET total_purchases = total_purchases + $2, updated_at = NOW()
		WHERE id = $1
	`, customerID, amount)
	if err != nil {
		return fmt.Errorf("update customer %d purchases: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertSale(ctx context.Context, sale *domain.Sale) error {
	err := t.tx.QueryRow(ctx, `
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
			idempotency_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`,
		sale.InvoiceNumber,
		sale.SaleDate,
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
	).Scan(&sale.ID, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sale: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) InsertSaleItems(ctx context.Context, saleID int64, items []domain.SaleItem) error {
	for i := range items {
		item := &items[i]
		item.SaleID = saleID
		if err := t.tx.QueryRow(ctx, `
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
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
		).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert sale item %d: %w", item.Position, err)
		}
	}
	return nil
}

func (t *pgTx) LockSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var locked int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock sale %d: %w", id, err)
	}
	return pgLoadSale(ctx, t.tx, "s.id = $1", id)
}

func (t *pgTx) UpdateSaleStatus(ctx context.Context, id int64, status domain.SaleStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update sale %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteSale(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sale %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payments (
			payment_number,
			type,
			sale_id,
			customer_id,
			amount,
			method,
			transaction_ref,
			paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`,
		payment.PaymentNumber,
		string(payment.Type),
		payment.SaleID,
		payment.CustomerID,
		payment.Amount,
		payment.Method,
		payment.TransactionRef,
		payment.PaidAt,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", mapPgError(err))
	}
	return nil
}

func (t *pgTx) SumPayments(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE sale_id = $1
	`, saleID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum payments for sale %d: %w", saleID, err)
	}
	return sum, nil
}

func (t *pgTx) ApplyInventoryDelta(ctx context.Context, productID int64, delta int, allowNegative bool) (int, error) {
	var quantity int
	if err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory (product_id, quantity, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (product_id)
		DO UPDATE SET
			quantity = inventory.quantity + EXCLUDED.quantity,
			updated_at = NOW()
		RETURNING quantity
	`, productID, delta).Scan(&quantity); err != nil {
		return 0, fmt.Errorf("apply inventory delta for product %d: %w", productID, err)
	}
	if !allowNegative && delta < 0 && quantity < 0 {
		return quantity, fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
	}
	return quantity, nil
}

func (t *pgTx) InsertMovement(ctx context.Context, movement *domain.InventoryMovement) error {
	if err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory_movements (product_id, quantity_delta, movement_type, sale_id, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`,
		movement.ProductID,
		movement.QuantityDelta,
		string(movement.MovementType),
		movement.SaleID,
		movement.Notes,
	).Scan(&movement.ID, &movement.CreatedAt); err != nil {
		return fmt.Errorf("insert movement for product %d: %w", movement.ProductID, err)
	}
	return nil
}

func (t *pgTx) InsertAudit(ctx context.Context, entry domain.AuditEntry) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO audit_log (action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4)
	`, entry.Action, entry.EntityType, entry.EntityID, auditDetails(entry.Details)); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const pgSaleColumns = `
	s.id,
	s.invoice_number,
	s.sale_date,
	s.customer_id,
	s.subtotal,
	s.discount_amount,
	s.global_discount_percent,
	s.tax_enabled,
	s.tax_amount,
	s.total_amount,
	s.amount_tendered,
	s.payment_method,
	s.status,
	s.notes,
	s.idempotency_key,
	s.created_at,
	s.updated_at,
	COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.sale_id = s.id), 0)
`

const pgCustomerColumns = `id, name, email, phone, total_purchases, created_at, updated_at`

func pgLoadSale(ctx context.Context, q pgQuerier, where string, arg any) (*domain.Sale, error) {
	row := q.QueryRow(ctx, `SELECT `+pgSaleColumns+` FROM sales s WHERE `+where, arg)
	sale, err := scanPgSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}

	rows, err := q.Query(ctx, `
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
		WHERE sale_id = $1
		ORDER BY position ASC
	`, sale.ID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()

	sale.Items = []domain.SaleItem{}
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.ID,
			&item.SaleID,
			&item.Position,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.ItemDiscount,
			&item.DiscountAmount,
			&item.TaxRate,
			&item.TaxAmount,
			&item.LineTotal,
		); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}
	return &sale, nil
}

func scanPgSale(row pgx.Row) (domain.Sale, error) {
	var (
		sale     domain.Sale
		customer sql.NullInt64
		notes    sql.NullString
		key      sql.NullString
		status   string
		paid     decimal.Decimal
	)
	if err := row.Scan(
		&sale.ID,
		&sale.InvoiceNumber,
		&sale.SaleDate,
		&customer,
		&sale.Subtotal,
		&sale.DiscountAmount,
		&sale.GlobalDiscountPercent,
		&sale.TaxEnabled,
		&sale.TaxAmount,
		&sale.TotalAmount,
		&sale.AmountTendered,
		&sale.PaymentMethod,
		&status,
		&notes,
		&key,
		&sale.CreatedAt,
		&sale.UpdatedAt,
		&paid,
	); err != nil {
		return domain.Sale{}, err
	}
	sale.Status = domain.SaleStatus(status)
	sale.CustomerID = nullInt64Ptr(customer)
	sale.Notes = nullStringPtr(notes)
	sale.IdempotencyKey = nullStringPtr(key)
	sale.ApplyPaid(paid)
	return sale, nil
}

func pgGetCustomer(ctx context.Context, q pgQuerier, id int64, forUpdate bool) (*domain.Customer, error) {
	query := `SELECT ` + pgCustomerColumns + ` FROM customers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	customer, err := scanPgCustomer(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer %d: %w", id, err)
	}
	return &customer, nil
}

func scanPgCustomer(row pgx.Row) (domain.Customer, error) {
	var (
		c     domain.Customer
		email sql.NullString
		phone sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &email, &phone, &c.TotalPurchases, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Customer{}, err
	}
	c.Email = nullStringPtr(email)
	c.Phone = nullStringPtr(phone)
	return c, nil
}

func pgGetSettings(ctx context.Context, q pgQuerier) (domain.StoreSettings, error) {
	var settings domain.StoreSettings
	err := q.QueryRow(ctx, `
		SELECT tax_enabled, tax_rate, allow_negative_stock, updated_at
		FROM store_settings
		WHERE id = 1
	`).Scan(&settings.TaxEnabled, &settings.TaxRate, &settings.AllowNegativeStock, &settings.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoreSettings{}, fmt.Errorf("store settings: %w", ErrNotFound)
	}
	if err != nil {
		return domain.StoreSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrDuplicate)
	}
	return err
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	value := v.String
	return &value
}
