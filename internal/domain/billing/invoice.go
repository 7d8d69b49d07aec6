package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvoiceNotFound = errors.New("billing: invoice not found")
)

// InvoiceState is the local lifecycle state of an invoice.
type InvoiceState string

const (
	InvoiceStateOpen      InvoiceState = "open"
	InvoiceStateCancelled InvoiceState = "cancelled"
)

// Invoice is a local invoice heading for the ledger as a sales order.
type Invoice struct {
	ID        int64
	PersonID  int64
	Title     string
	Reference string
	Total     decimal.Decimal
	State     InvoiceState
	IssuedAt  time.Time
	Positions []InvoicePosition

	// SalesOrderKey is the remote sales order id, written exactly once per
	// successful create.
	SalesOrderKey *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSalesOrderKey reports whether the invoice is already linked remotely.
func (i *Invoice) HasSalesOrderKey() bool {
	return i.SalesOrderKey != nil
}

// Cancelled reports whether the invoice is locally cancelled.
func (i *Invoice) Cancelled() bool {
	return i.State == InvoiceStateCancelled
}

// InvoiceRepository provides access to persisted invoices.
type InvoiceRepository interface {
	FindByID(ctx context.Context, id int64) (*Invoice, error)
	// FindOpenWithoutKey lists open invoices not yet linked remotely.
	FindOpenWithoutKey(ctx context.Context, limit int) ([]*Invoice, error)
	Save(ctx context.Context, invoice *Invoice) error
	// AssignSalesOrderKey writes the sales order key as a single atomic
	// column update, bypassing hooks, validation and version tracking.
	AssignSalesOrderKey(ctx context.Context, id int64, key int64) error
	// MarkCancelled flips the state column atomically, same bypass rules.
	MarkCancelled(ctx context.Context, id int64) error
}
