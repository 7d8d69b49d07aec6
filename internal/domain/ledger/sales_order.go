package ledger

import "github.com/shopspring/decimal"

// SalesOrderKey identifies a sales order remotely. Sales orders use a
// composite key of order id and backlog id.
type SalesOrderKey struct {
	OrderID   int64
	BacklogID int64
}

// SalesOrder is the payload shape for a ledger sales order create.
type SalesOrder struct {
	CustomerID   int64
	DocumentDate string
	Reference    string
	Currency     string
	Positions    []SalesOrderPosition
	UserFields   map[string]any
}

// SalesOrderPosition is one billable line of a sales order payload.
type SalesOrderPosition struct {
	Number        int
	Description   string
	ArticleNumber string
	Amount        decimal.Decimal
	Count         int
	CostCenter    string
	CostUnit      string
	UserFields    map[string]any
}

// Params renders the full sales order payload including ordered positions.
func (o SalesOrder) Params() map[string]any {
	positions := make([]any, 0, len(o.Positions))
	for _, p := range o.Positions {
		positions = append(positions, p.params())
	}
	params := map[string]any{
		"customer_id":   o.CustomerID,
		"document_date": o.DocumentDate,
		"reference":     Trunc(o.Reference, LimitText),
		"currency":      o.Currency,
		"positions":     positions,
	}
	if len(o.UserFields) > 0 {
		params["user_fields"] = o.UserFields
	}
	return params
}

func (p SalesOrderPosition) params() map[string]any {
	entry := map[string]any{
		"position_number": p.Number,
		"type":            "Product",
		"description":     Trunc(p.Description, LimitText),
		"article_number":  Trunc(p.ArticleNumber, LimitArticleNumber),
		"quantity":        map[string]any{"amount": p.Count},
		"price":           map[string]any{"amount": p.Amount, "currency": "CHF"},
	}
	if p.CostCenter != "" || p.CostUnit != "" {
		entry["cost_allocation"] = map[string]any{
			"cost_center": p.CostCenter,
			"cost_unit":   p.CostUnit,
		}
	}
	if len(p.UserFields) > 0 {
		entry["user_fields"] = p.UserFields
	}
	return entry
}

// SalesOrderKeyFromMap reads the composite key out of a create response.
func SalesOrderKeyFromMap(m map[string]any) (SalesOrderKey, bool) {
	orderID, ok := Int64(m, "sales_order_id")
	if !ok {
		return SalesOrderKey{}, false
	}
	backlogID, _ := Int64(m, "sales_order_backlog_id")
	return SalesOrderKey{OrderID: orderID, BacklogID: backlogID}, true
}
