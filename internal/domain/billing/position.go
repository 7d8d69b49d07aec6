package billing

import "github.com/shopspring/decimal"

// InvoicePosition is one billable line of an invoice. Pure value object:
// produced by the fee calculators of the surrounding application, consumed
// here to build sales order payloads.
type InvoicePosition struct {
	Name               string
	Grouping           string
	Amount             decimal.Decimal
	Count              int
	ArticleNumber      string
	CostCenter         string
	CostUnit           string
	OtherDebitorID     string
	OtherDebitorAmount decimal.Decimal
	OtherCreditorID    string
	Details            string
}

// NewInvoicePosition creates a position with the count defaulted to 1.
func NewInvoicePosition(name string, amount decimal.Decimal) InvoicePosition {
	return InvoicePosition{
		Name:   name,
		Amount: amount,
		Count:  1,
	}
}
