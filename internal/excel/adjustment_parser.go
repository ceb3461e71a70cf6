package excel

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"retailpos/internal/domain"

	"github.com/xuri/excelize/v2"
)

var headerAliases = map[string]string{
	"product id": "product_id",
	"productid":  "product_id",
	"product":    "product_id",
	"id":         "product_id",
	"کد کالا":    "product_id",
	"کد محصول":   "product_id",
	"quantity":   "quantity",
	"qty":        "quantity",
	"delta":      "quantity",
	"تعداد":      "quantity",
	"notes":      "notes",
	"note":       "notes",
	"comment":    "notes",
	"توضیحات":    "notes",
}

// ParseAdjustments reads product_id | quantity | notes rows from the first
// sheet. Rows without a product id are skipped.
func ParseAdjustments(reader io.Reader) ([]domain.InventoryAdjustment, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}

	colMap := mapColumns(rows[0])
	if _, ok := colMap["product_id"]; !ok {
		return nil, fmt.Errorf("missing required column: product_id")
	}
	if _, ok := colMap["quantity"]; !ok {
		return nil, fmt.Errorf("missing required column: quantity")
	}

	result := make([]domain.InventoryAdjustment, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		rawID := strings.TrimSpace(readCell(cells, colMap["product_id"]))
		if rawID == "" {
			continue
		}

		productID, err := parseInt(rawID)
		if err != nil {
			return nil, fmt.Errorf("row %d invalid product_id: %w", index+1, err)
		}
		if productID <= 0 {
			return nil, fmt.Errorf("row %d invalid product_id: must be positive", index+1)
		}

		qty, err := parseInt(readCell(cells, colMap["quantity"]))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid quantity: %w", index+1, err)
		}
		if qty == 0 {
			return nil, fmt.Errorf("row %d invalid quantity: must not be zero", index+1)
		}

		var notes *string
		if idx, ok := colMap["notes"]; ok {
			value := strings.TrimSpace(readCell(cells, idx))
			if value != "" {
				notes = &value
			}
		}

		result = append(result, domain.InventoryAdjustment{
			ProductID: productID,
			Quantity:  int(qty),
			Notes:     notes,
		})
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("excel file has no valid data rows")
	}
	return result, nil
}

func mapColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		normalized := normalizeHeader(col)
		if normalized == "" {
			continue
		}
		canonical, ok := headerAliases[normalized]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

func readCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseInt(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("value is empty")
	}

	asFloat, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.Mod(asFloat, 1) != 0 {
		return 0, fmt.Errorf("must be an integer")
	}
	if math.Abs(asFloat) > math.MaxInt32 {
		return 0, fmt.Errorf("out of range")
	}
	return int64(asFloat), nil
}
