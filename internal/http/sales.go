package http

import (
	"fmt"
	"net/http"
	"strings"

	"retailpos/internal/domain"
	"retailpos/internal/pricing"
	"retailpos/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type saleItemRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	Discount  decimal.Decimal  `json:"discount"`
	TaxRate   *decimal.Decimal `json:"tax_rate"`
}

type createSaleRequest struct {
	CustomerID      *int64            `json:"customer_id" validate:"omitempty,gt=0"`
	Items           []saleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string            `json:"payment_method" validate:"omitempty,max=32"`
	AmountTendered  decimal.Decimal   `json:"amount_tendered"`
	DiscountPercent decimal.Decimal   `json:"discount_percent"`
	Notes           *string           `json:"notes" validate:"omitempty,max=2000"`
	TransactionRef  *string           `json:"transaction_ref" validate:"omitempty,max=128"`
	IdempotencyKey  *string           `json:"idempotency_key"`
}

func (req createSaleRequest) toInput() service.CreateSaleInput {
	items := make([]service.SaleItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.SaleItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Discount:  it.Discount,
			TaxRate:   it.TaxRate,
		}
	}
	return service.CreateSaleInput{
		CustomerID:      req.CustomerID,
		Items:           items,
		PaymentMethod:   req.PaymentMethod,
		AmountTendered:  req.AmountTendered,
		DiscountPercent: req.DiscountPercent,
		Notes:           req.Notes,
		TransactionRef:  req.TransactionRef,
		IdempotencyKey:  req.IdempotencyKey,
	}
}

// CreateSale answers 201 for a new sale and 200 when the Idempotency-Key
// header (or idempotency_key field) matches an earlier one.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = &key
	}

	sale, created, err := h.svc.CreateSale(r.Context(), req.toInput())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("/api/v1/sales/%d", sale.ID))
	}
	writeJSON(w, status, sale)
}

type quoteLineView struct {
	ProductID      int64           `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	ItemDiscount   decimal.Decimal `json:"item_discount"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	LineGross      decimal.Decimal `json:"line_gross"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type quoteView struct {
	Items          []quoteLineView `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	ItemDiscount   decimal.Decimal `json:"item_discount"`
	GlobalDiscount decimal.Decimal `json:"global_discount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

func newQuoteView(totals pricing.Totals) quoteView {
	view := quoteView{
		Items:          make([]quoteLineView, len(totals.Lines)),
		Subtotal:       pricing.Round(totals.Subtotal),
		ItemDiscount:   pricing.Round(totals.ItemDiscount),
		GlobalDiscount: pricing.Round(totals.GlobalDiscount),
		DiscountAmount: pricing.Round(totals.DiscountAmount),
		TaxAmount:      pricing.Round(totals.TaxAmount),
		TotalAmount:    pricing.Round(totals.TotalAmount),
	}
	for i, line := range totals.Lines {
		view.Items[i] = quoteLineView{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			ItemDiscount:   line.ItemDiscount,
			TaxRate:        line.TaxRate,
			LineGross:      pricing.Round(line.LineGross),
			DiscountAmount: pricing.Round(line.DiscountAmount),
			TaxAmount:      pricing.Round(line.TaxAmount),
			LineTotal:      pricing.Round(line.LineTotal),
		}
	}
	return view
}

func (h *Handler) QuoteSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	totals, err := h.svc.QuoteSale(r.Context(), req.toInput())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteView(totals))
}

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseOptionalInt(query.Get("limit"), 200)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseOptionalInt(query.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	customerID, err := parseOptionalInt64(query.Get("customer_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseOptionalTime(query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseOptionalTime(query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sales, err := h.svc.ListSales(r.Context(), domain.SaleFilter{
		Status:     domain.SaleStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		CustomerID: customerID,
		From:       from,
		To:         to,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": sales, "count": len(sales)})
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sale, err := h.svc.GetSale(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

type updateSaleRequest struct {
	Status     *string          `json:"status" validate:"omitempty,oneof=draft pending completed cancelled"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
}

func (h *Handler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateSaleRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := service.UpdateSaleInput{PaidAmount: req.PaidAmount}
	if req.Status != nil {
		status := domain.SaleStatus(*req.Status)
		input.Status = &status
	}
	sale, err := h.svc.UpdateSale(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sale, err := h.svc.CancelSale(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.DeleteSale(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payments, err := h.svc.ListPayments(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payments, "count": len(payments)})
}

type recordPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method" validate:"required,max=32"`
	TransactionRef *string         `json:"transaction_ref" validate:"omitempty,max=128"`
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req recordPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payment, err := h.svc.RecordPayment(r.Context(), id, service.RecordPaymentInput{
		Amount:         req.Amount,
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}
