package ledgersync

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/domain/billing"
	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/infrastructure/ledgerclient"
)

// printingModeParams is the fixed payload of the workflow-advance call.
func printingModeParams() map[string]any {
	return map[string]any{"printing_mode": "electronic"}
}

// SalesOrderSynchronizer pushes local invoices to the ledger as sales orders.
type SalesOrderSynchronizer struct {
	client   *ledgerclient.Client
	invoices billing.InvoiceRepository
	logger   *zap.Logger
}

// NewSalesOrderSynchronizer creates a new SalesOrderSynchronizer
func NewSalesOrderSynchronizer(client *ledgerclient.Client, invoices billing.InvoiceRepository, logger *zap.Logger) *SalesOrderSynchronizer {
	return &SalesOrderSynchronizer{
		client:   client,
		invoices: invoices,
		logger:   logger,
	}
}

// Create pushes one invoice as a remote sales order. The returned key is
// written back exactly once; an invoice already linked (or cancelled) is left
// untouched and reported as not dispatched. On the single-call path the
// remote workflow is advanced right after the create; bulk creation skips
// that step, the transition happens out-of-band there.
func (s *SalesOrderSynchronizer) Create(ctx context.Context, inv *billing.Invoice) (bool, error) {
	if inv.HasSalesOrderKey() || inv.Cancelled() {
		return false, nil
	}

	res, err := s.client.Call(ctx, http.MethodPost, s.client.Path("SalesOrders"), desiredSalesOrder(inv).Params())
	if err != nil {
		return false, err
	}

	key, ok := ledger.SalesOrderKeyFromMap(res)
	if !ok {
		return false, fmt.Errorf("%w: sales order create response carries no key", ledger.ErrInvalidResponse)
	}
	if err := s.assignKey(ctx, inv, key.OrderID); err != nil {
		return false, err
	}

	s.logger.Info("ledger sales order created",
		zap.Int64("invoice_id", inv.ID),
		zap.Int64("sales_order_id", key.OrderID),
	)

	if _, err := s.client.Call(ctx, http.MethodPost, s.client.WorkflowPath(key), printingModeParams()); err != nil {
		return true, err
	}
	return true, nil
}

// Cancel sets the remote cancellation flag and marks the local invoice
// cancelled. Safe to repeat.
func (s *SalesOrderSynchronizer) Cancel(ctx context.Context, inv *billing.Invoice) error {
	if inv.HasSalesOrderKey() {
		key := ledger.SalesOrderKey{OrderID: *inv.SalesOrderKey}
		params := map[string]any{"user_fields": map[string]any{"cancelled": true}}
		if _, err := s.client.Call(ctx, http.MethodPatch, s.client.SalesOrderPath(key), params); err != nil {
			return err
		}
	}

	if err := s.invoices.MarkCancelled(ctx, inv.ID); err != nil {
		return err
	}
	inv.State = billing.InvoiceStateCancelled
	return nil
}

// CreateAll pushes many invoices through one batch call. Keys are assigned
// positionally, only for outcomes the ledger reports as created; a failed
// part never touches its invoice.
func (s *SalesOrderSynchronizer) CreateAll(ctx context.Context, invoices []*billing.Invoice) (*BulkReport, error) {
	report := newBulkReport()

	outcomes, err := s.client.RunBatch(ctx, func(ctx context.Context, b *ledgerclient.Batch) error {
		for _, inv := range invoices {
			if inv.HasSalesOrderKey() || inv.Cancelled() {
				continue
			}
			b.Add(http.MethodPost, s.client.Path("SalesOrders"), desiredSalesOrder(inv).Params(), inv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, outcome := range outcomes {
		inv, ok := outcome.Request.Correlation.(*billing.Invoice)
		if !ok {
			continue
		}
		if !outcome.Created() {
			message := outcome.ErrorMessage()
			if message == "" {
				message = fmt.Sprintf("ledger returned HTTP %d", outcome.StatusCode)
			}
			report.fail(inv.ID, billingFieldError(message))
			continue
		}

		res, err := outcome.JSON()
		if err != nil {
			report.fail(inv.ID, billingFieldError("unparsable create response"))
			continue
		}
		key, ok := ledger.SalesOrderKeyFromMap(res)
		if !ok {
			report.fail(inv.ID, billingFieldError("create response carries no key"))
			continue
		}
		if err := s.assignKey(ctx, inv, key.OrderID); err != nil {
			return report, err
		}
		report.Synced++
	}

	return report, nil
}

// assignKey writes the sales order key onto the invoice exactly once,
// through the repository's atomic bypass-validation update.
func (s *SalesOrderSynchronizer) assignKey(ctx context.Context, inv *billing.Invoice, key int64) error {
	if err := s.invoices.AssignSalesOrderKey(ctx, inv.ID, key); err != nil {
		return err
	}
	inv.SalesOrderKey = &key
	return nil
}
