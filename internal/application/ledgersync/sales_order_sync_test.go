package ledgersync

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/domain/billing"
	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/infrastructure/ledgerclient/ledgertest"
)

const salesOrderPath = "/api/entity/v1/mandants/200/SalesOrders"

func TestCreatePushesInvoiceAndAdvancesWorkflow(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	srv.Stub("POST", salesOrderPath, ledgertest.Response{
		Status: http.StatusCreated,
		Body:   `{"salesOrderId":99,"salesOrderBacklogId":0}`,
	})

	inv := testInvoice()
	repo := newFakeInvoiceRepo(inv)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	dispatched, err := sync.Create(context.Background(), inv)
	require.NoError(t, err)
	assert.True(t, dispatched)

	assert.Equal(t, int64(99), repo.assigned[31])
	require.NotNil(t, inv.SalesOrderKey)
	assert.Equal(t, int64(99), *inv.SalesOrderKey)

	calls := srv.Calls()
	require.Len(t, calls, 2)

	create := calls[0]
	assert.Equal(t, salesOrderPath, create.Path)
	assert.Equal(t, float64(7), create.Body["customerId"])
	assert.Equal(t, "2026-01-05", create.Body["documentDate"])
	assert.Equal(t, "INV-31", create.Body["reference"])
	assert.Equal(t, "CHF", create.Body["currency"])

	positions, ok := create.Body["positions"].([]any)
	require.True(t, ok)
	require.Len(t, positions, 1)
	position, ok := positions[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), position["positionNumber"])
	assert.Equal(t, "Product", position["type"])
	assert.Equal(t, "Jahresbeitrag", position["description"])

	userFields, ok := create.Body["userFields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(31), userFields["invoiceId"])
	assert.Equal(t, "Membership 2026", userFields["title"])

	workflow := calls[1]
	assert.Equal(t, "POST", workflow.Method)
	assert.Equal(t,
		salesOrderPath+"(SalesOrderId=99,SalesOrderBacklogId=0)/SalesOrderWorkflow.TriggerSalesOrderNextStep",
		workflow.Path)
	assert.Equal(t, "electronic", workflow.Body["printingMode"])
}

func TestCreateSkipsLinkedInvoice(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	inv := testInvoice()
	key := int64(99)
	inv.SalesOrderKey = &key
	repo := newFakeInvoiceRepo(inv)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	dispatched, err := sync.Create(context.Background(), inv)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Empty(t, srv.Calls())
}

func TestCreateSkipsCancelledInvoice(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	inv := testInvoice()
	inv.State = billing.InvoiceStateCancelled
	repo := newFakeInvoiceRepo(inv)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	dispatched, err := sync.Create(context.Background(), inv)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Empty(t, srv.Calls())
}

func TestCreateRejectsResponseWithoutKey(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	srv.Stub("POST", salesOrderPath, ledgertest.Response{Status: http.StatusCreated, Body: `{}`})

	inv := testInvoice()
	repo := newFakeInvoiceRepo(inv)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	_, err := sync.Create(context.Background(), inv)
	assert.ErrorIs(t, err, ledger.ErrInvalidResponse)
	assert.Empty(t, repo.assigned)
	assert.Nil(t, inv.SalesOrderKey)
}

func TestCancelWithRemoteKey(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	inv := testInvoice()
	key := int64(99)
	inv.SalesOrderKey = &key
	repo := newFakeInvoiceRepo(inv)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	require.NoError(t, sync.Cancel(context.Background(), inv))

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "PATCH", calls[0].Method)
	assert.Equal(t, salesOrderPath+"(SalesOrderId=99,SalesOrderBacklogId=0)", calls[0].Path)
	userFields, ok := calls[0].Body["userFields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, userFields["cancelled"])

	assert.Equal(t, []int64{31}, repo.cancelled)
	assert.Equal(t, billing.InvoiceStateCancelled, inv.State)
}

func TestCancelWithoutRemoteKey(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	inv := testInvoice()
	repo := newFakeInvoiceRepo(inv)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	require.NoError(t, sync.Cancel(context.Background(), inv))

	assert.Empty(t, srv.Calls())
	assert.Equal(t, []int64{31}, repo.cancelled)
	assert.Equal(t, billing.InvoiceStateCancelled, inv.State)
}

func TestCreateAllAssignsKeysPositionally(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	invoices := make([]*billing.Invoice, 3)
	for i := range invoices {
		inv := testInvoice()
		inv.ID = int64(31 + i)
		invoices[i] = inv
	}

	// The middle invoice is rejected; its neighbours must still get their
	// keys by position.
	srv.BatchFn = func(parts []ledgertest.Call) []ledgertest.Response {
		require.Len(t, parts, 3)
		return []ledgertest.Response{
			{Status: http.StatusCreated, Body: `{"salesOrderId":901}`},
			{Status: http.StatusBadRequest, Body: `{"error":{"message":"Kunde gesperrt"}}`},
			{Status: http.StatusCreated, Body: `{"salesOrderId":903}`},
		}
	}

	repo := newFakeInvoiceRepo(invoices...)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	report, err := sync.CreateAll(context.Background(), invoices)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors[32], 1)
	assert.Contains(t, report.Errors[32][0].Message, "Kunde gesperrt")

	assert.Equal(t, int64(901), repo.assigned[31])
	assert.NotContains(t, repo.assigned, int64(32))
	assert.Equal(t, int64(903), repo.assigned[33])

	assert.Nil(t, invoices[1].SalesOrderKey)
	require.NotNil(t, invoices[0].SalesOrderKey)
	require.NotNil(t, invoices[2].SalesOrderKey)
}

func TestCreateAllSkipsLinkedAndCancelled(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()

	linked := testInvoice()
	key := int64(99)
	linked.SalesOrderKey = &key
	cancelled := testInvoice()
	cancelled.ID = 32
	cancelled.State = billing.InvoiceStateCancelled
	open := testInvoice()
	open.ID = 33

	srv.BatchFn = func(parts []ledgertest.Call) []ledgertest.Response {
		require.Len(t, parts, 1)
		assert.True(t, strings.HasSuffix(parts[0].Path, "/SalesOrders"))
		return []ledgertest.Response{{Status: http.StatusCreated, Body: `{"salesOrderId":903}`}}
	}

	repo := newFakeInvoiceRepo(linked, cancelled, open)
	sync := NewSalesOrderSynchronizer(testClient(t, srv), repo, zap.NewNop())

	report, err := sync.CreateAll(context.Background(), []*billing.Invoice{linked, cancelled, open})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, int64(903), repo.assigned[33])
}
