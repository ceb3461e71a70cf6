package notify

import (
	"fmt"
	"log"
	"strings"
	"text/template"

	"retailpos/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"date":  func(s domain.Sale) string { return s.SaleDate.Format("2006-01-02 15:04") },
}).Parse(`Receipt {{.InvoiceNumber}}
Date: {{date .}}
{{range .Items}}
  #{{.ProductID}}  {{.Quantity}} x {{money .UnitPrice}}{{if .DiscountAmount.IsPositive}}  -{{money .DiscountAmount}}{{end}}{{if .TaxAmount.IsPositive}}  +tax {{money .TaxAmount}}{{end}}  = {{money .LineTotal}}
{{- end}}

Subtotal: {{money .Subtotal}}
Discount: {{money .DiscountAmount}}
Tax:      {{money .TaxAmount}}
Total:    {{money .TotalAmount}}
Paid:     {{money .PaidAmount}} ({{.PaymentMethod}})
{{- if .ChangeDue.IsPositive}}
Change:   {{money .ChangeDue}}
{{- end}}
{{- if .BalanceAmount.IsPositive}}
Balance:  {{money .BalanceAmount}}
{{- end}}
`))

func RenderReceipt(sale domain.Sale) (string, error) {
	var b strings.Builder
	if err := receiptTemplate.Execute(&b, sale); err != nil {
		return "", fmt.Errorf("render receipt %s: %w", sale.InvoiceNumber, err)
	}
	return b.String(), nil
}

// Destination picks the customer's email, falling back to their phone.
func Destination(customer *domain.Customer) string {
	if customer == nil {
		return ""
	}
	if customer.Email != nil && strings.TrimSpace(*customer.Email) != "" {
		return strings.TrimSpace(*customer.Email)
	}
	if customer.Phone != nil && strings.TrimSpace(*customer.Phone) != "" {
		return strings.TrimSpace(*customer.Phone)
	}
	return ""
}

type Enqueuer interface {
	Enqueue(msg Message) bool
}

// ReceiptNotifier turns committed sales into receipt messages.
type ReceiptNotifier struct {
	queue Enqueuer
}

func NewReceiptNotifier(queue Enqueuer) *ReceiptNotifier {
	return &ReceiptNotifier{queue: queue}
}

func (n *ReceiptNotifier) SaleRecorded(sale domain.Sale, customer *domain.Customer) {
	to := Destination(customer)
	if to == "" {
		return
	}
	body, err := RenderReceipt(sale)
	if err != nil {
		log.Printf("notify: %v", err)
		return
	}
	msg := Message{
		ID:      uuid.New(),
		To:      to,
		Subject: "Receipt " + sale.InvoiceNumber,
		Body:    body,
	}
	if !n.queue.Enqueue(msg) {
		log.Printf("notify: receipt %s for %s not queued", sale.InvoiceNumber, to)
	}
}
