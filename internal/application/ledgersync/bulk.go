package ledgersync

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alpineclub/backend/internal/domain/billing"
	"github.com/alpineclub/backend/internal/domain/member"
	"github.com/alpineclub/backend/internal/infrastructure/config"
)

// BulkReport aggregates the outcome of a bulk run. Errors are keyed by the
// local entity id, shaped for the import report log.
type BulkReport struct {
	Total  int                           `json:"total"`
	Synced int                           `json:"synced"`
	Failed int                           `json:"failed"`
	Errors map[int64][]member.FieldError `json:"errors,omitempty"`
}

func newBulkReport() *BulkReport {
	return &BulkReport{Errors: make(map[int64][]member.FieldError)}
}

func (r *BulkReport) fail(id int64, errs ...member.FieldError) {
	r.Failed++
	r.Errors[id] = append(r.Errors[id], errs...)
}

func (r *BulkReport) merge(other *BulkReport) {
	r.Synced += other.Synced
	r.Failed += other.Failed
	for id, errs := range other.Errors {
		r.Errors[id] = append(r.Errors[id], errs...)
	}
}

func billingFieldError(message string) member.FieldError {
	return member.FieldError{Field: "base", Message: message}
}

// BulkRunner fans bulk synchronization out over a bounded worker pool. Each
// worker submits one batch chunk; the shared ledger client serializes only
// the token cache, so chunks proceed independently.
type BulkRunner struct {
	subjects  *SubjectSynchronizer
	orders    *SalesOrderSynchronizer
	people    member.PersonRepository
	invoices  billing.InvoiceRepository
	logger    *zap.Logger
	chunkSize int
	workers   int
	maxFetch  int
}

// NewBulkRunner creates a new BulkRunner
func NewBulkRunner(
	subjects *SubjectSynchronizer,
	orders *SalesOrderSynchronizer,
	people member.PersonRepository,
	invoices billing.InvoiceRepository,
	cfg *config.SyncConfig,
	logger *zap.Logger,
) *BulkRunner {
	return &BulkRunner{
		subjects:  subjects,
		orders:    orders,
		people:    people,
		invoices:  invoices,
		logger:    logger,
		chunkSize: cfg.ChunkSize,
		workers:   cfg.Workers,
		maxFetch:  cfg.MaxPeople,
	}
}

// SyncPeople creates ledger records for all pending people, chunked into
// batch calls running on the worker pool.
func (r *BulkRunner) SyncPeople(ctx context.Context) (*BulkReport, error) {
	people, err := r.people.FindPending(ctx, r.maxFetch)
	if err != nil {
		return nil, err
	}
	report := newBulkReport()
	report.Total = len(people)
	if len(people) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, chunk := range chunks(people, r.chunkSize) {
		g.Go(func() error {
			part, err := r.subjects.SyncAllNew(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			report.merge(part)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	r.logger.Info("bulk person sync finished",
		zap.Int("total", report.Total),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// SyncInvoices creates sales orders for all open unlinked invoices, chunked
// into batch calls running on the worker pool.
func (r *BulkRunner) SyncInvoices(ctx context.Context) (*BulkReport, error) {
	invoices, err := r.invoices.FindOpenWithoutKey(ctx, r.maxFetch)
	if err != nil {
		return nil, err
	}
	report := newBulkReport()
	report.Total = len(invoices)
	if len(invoices) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, chunk := range chunks(invoices, r.chunkSize) {
		g.Go(func() error {
			part, err := r.orders.CreateAll(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			report.merge(part)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	r.logger.Info("bulk invoice sync finished",
		zap.Int("total", report.Total),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		return [][]T{items}
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
