package service

import (
	"context"
	"errors"
	"fmt"

	"retailpos/internal/domain"
	"retailpos/internal/repository"
)

// applyStockChange moves the running total by delta and appends the matching
// movement record. Both happen on tx, so they commit or vanish together.
func applyStockChange(
	ctx context.Context,
	tx repository.Tx,
	productID int64,
	delta int,
	movementType domain.MovementType,
	saleID *int64,
	notes *string,
	allowNegative bool,
) (domain.InventoryMovement, error) {
	if _, err := tx.ApplyInventoryDelta(ctx, productID, delta, allowNegative); err != nil {
		return domain.InventoryMovement{}, err
	}
	movement := domain.InventoryMovement{
		ProductID:     productID,
		QuantityDelta: delta,
		MovementType:  movementType,
		SaleID:        saleID,
		Notes:         notes,
	}
	if err := tx.InsertMovement(ctx, &movement); err != nil {
		return domain.InventoryMovement{}, err
	}
	return movement, nil
}

func validateAdjustment(index int, adj domain.InventoryAdjustment) error {
	field := "product_id"
	if index >= 0 {
		field = fmt.Sprintf("rows[%d].product_id", index)
	}
	if adj.ProductID <= 0 {
		return invalid(field, "must be positive")
	}
	if adj.Quantity == 0 {
		if index >= 0 {
			return invalid(fmt.Sprintf("rows[%d].quantity", index), "must not be zero")
		}
		return invalid("quantity", "must not be zero")
	}
	return nil
}

// AdjustInventory records one manual stock correction.
func (s *Service) AdjustInventory(ctx context.Context, adj domain.InventoryAdjustment) (domain.InventoryMovement, error) {
	if err := validateAdjustment(-1, adj); err != nil {
		return domain.InventoryMovement{}, err
	}
	adj.Notes = normalizeNullable(adj.Notes)

	var movement domain.InventoryMovement
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		movement, err = applyStockChange(ctx, tx, adj.ProductID, adj.Quantity, domain.MovementTypeAdjustment, nil, adj.Notes, settings.AllowNegativeStock)
		if err != nil {
			return err
		}
		return audit(ctx, tx, "inventory.adjusted", "product", &adj.ProductID, fmt.Sprintf("delta %+d", adj.Quantity))
	})
	if err != nil {
		return domain.InventoryMovement{}, fmt.Errorf("adjust inventory: %w", err)
	}
	return movement, nil
}

// ImportAdjustments applies every row in one transaction; a bad row rejects
// the whole batch.
func (s *Service) ImportAdjustments(ctx context.Context, rows []domain.InventoryAdjustment) (int, error) {
	if len(rows) == 0 {
		return 0, invalid("rows", "import file has no data rows")
	}
	for i := range rows {
		if err := validateAdjustment(i, rows[i]); err != nil {
			return 0, err
		}
		rows[i].Notes = normalizeNullable(rows[i].Notes)
	}

	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		settings, err := tx.GetSettings(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := applyStockChange(ctx, tx, row.ProductID, row.Quantity, domain.MovementTypeAdjustment, nil, row.Notes, settings.AllowNegativeStock); err != nil {
				return err
			}
		}
		return audit(ctx, tx, "inventory.imported", "inventory", nil, fmt.Sprintf("%d rows", len(rows)))
	})
	if err != nil {
		return 0, fmt.Errorf("import adjustments: %w", err)
	}
	return len(rows), nil
}

// GetInventory reports a product's running total; a product that never moved
// has zero on hand.
func (s *Service) GetInventory(ctx context.Context, productID int64) (domain.InventoryLevel, error) {
	level, err := s.store.GetInventory(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.InventoryLevel{ProductID: productID}, nil
	}
	if err != nil {
		return domain.InventoryLevel{}, err
	}
	return *level, nil
}

func (s *Service) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	return s.store.ListMovements(ctx, filter)
}
