package excel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseAdjustments(t *testing.T) {
	buf := workbook(t, [][]any{
		{"Notes", "Product_ID", "Qty"},
		{"recount", 12, -3},
		{"", "", ""},
		{"", "7", "1,000"},
	})

	rows, err := ParseAdjustments(buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(12), rows[0].ProductID)
	assert.Equal(t, -3, rows[0].Quantity)
	require.NotNil(t, rows[0].Notes)
	assert.Equal(t, "recount", *rows[0].Notes)

	assert.Equal(t, int64(7), rows[1].ProductID)
	assert.Equal(t, 1000, rows[1].Quantity)
	assert.Nil(t, rows[1].Notes)
}

func TestParseAdjustmentsPersianHeaders(t *testing.T) {
	buf := workbook(t, [][]any{
		{"کد کالا", "تعداد", "توضیحات"},
		{3, 5, "ورود"},
	})

	rows, err := ParseAdjustments(buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].ProductID)
	assert.Equal(t, 5, rows[0].Quantity)
}

func TestParseAdjustmentsErrors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want string
	}{
		{name: "missing product column", rows: [][]any{{"qty"}, {1}}, want: "missing required column: product_id"},
		{name: "missing quantity column", rows: [][]any{{"product_id"}, {1}}, want: "missing required column: quantity"},
		{name: "fractional quantity", rows: [][]any{{"product_id", "quantity"}, {1, 1.5}}, want: "row 2 invalid quantity: must be an integer"},
		{name: "zero quantity", rows: [][]any{{"product_id", "quantity"}, {1, 0}}, want: "row 2 invalid quantity: must not be zero"},
		{name: "bad product id", rows: [][]any{{"product_id", "quantity"}, {"abc", 1}}, want: "row 2 invalid product_id: not a number"},
		{name: "negative product id", rows: [][]any{{"product_id", "quantity"}, {-4, 1}}, want: "row 2 invalid product_id: must be positive"},
		{name: "header only", rows: [][]any{{"product_id", "quantity"}}, want: "no valid data rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAdjustments(workbook(t, tt.rows))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseAdjustmentsRejectsNonWorkbook(t *testing.T) {
	_, err := ParseAdjustments(bytes.NewBufferString("product_id,quantity\n1,2\n"))
	assert.ErrorContains(t, err, "open excel file")
}
