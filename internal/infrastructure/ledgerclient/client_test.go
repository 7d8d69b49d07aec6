package ledgerclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/infrastructure/config"
	"github.com/alpineclub/backend/internal/infrastructure/ledgerclient/ledgertest"
)

func newTestClient(t *testing.T, srv *ledgertest.Server) *Client {
	t.Helper()
	client, err := NewClient(testLedgerConfig(srv.URL()), zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresConfiguration(t *testing.T) {
	_, err := NewClient(&config.LedgerConfig{Host: "https://ledger.example.com"}, zap.NewNop())
	assert.ErrorIs(t, err, ledger.ErrNotConfigured)
}

func TestPathHelpers(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	assert.Equal(t, "/api/entity/v1/mandants/200", client.APIRoot())
	assert.Equal(t, "/api/entity/v1/mandants/200/Subjects", client.Path("Subjects"))
	assert.Equal(t, "/api/entity/v1/mandants/200/Subjects(Id=7)", client.KeyPath("Subjects", 7))

	key := ledger.SalesOrderKey{OrderID: 5, BacklogID: 0}
	assert.Equal(t,
		"/api/entity/v1/mandants/200/SalesOrders(SalesOrderId=5,SalesOrderBacklogId=0)",
		client.SalesOrderPath(key))
	assert.Equal(t,
		"/api/entity/v1/mandants/200/SalesOrders(SalesOrderId=5,SalesOrderBacklogId=0)/SalesOrderWorkflow.TriggerSalesOrderNextStep",
		client.WorkflowPath(key))
}

func TestCallSendsBearerAndCamelCaseBody(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	srv.Stub("POST", "/api/entity/v1/mandants/200/Subjects",
		ledgertest.Response{Status: http.StatusCreated, Body: `{"id":42}`})

	res, err := client.Call(context.Background(), http.MethodPost, client.Path("Subjects"), map[string]any{
		"last_name": "Muster",
		"zip_code":  "3000",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(42), res["id"])

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer tok-1", calls[0].Header.Get("Authorization"))
	assert.Equal(t, "application/json", calls[0].Header.Get("Content-Type"))
	assert.Equal(t, "Muster", calls[0].Body["lastName"])
	assert.Equal(t, "3000", calls[0].Body["zipCode"])
	assert.NotContains(t, calls[0].Body, "last_name")
}

func TestCallGetSendsQueryWithoutBody(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.Call(context.Background(), http.MethodGet, client.KeyPath("Subjects", 7), map[string]any{
		"$expand": "Addresses,Communications,Customers",
	})
	require.NoError(t, err)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Addresses,Communications,Customers", calls[0].Query.Get("$expand"))
	assert.Nil(t, calls[0].Body)
}

func TestCallPromotesStructuredBadRequestMessage(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	srv.Stub("POST", "/api/entity/v1/mandants/200/Subjects", ledgertest.Response{
		Status: http.StatusBadRequest,
		Body:   `{"error":{"message":"Postleitzahl fehlt"}}`,
	})

	_, err := client.Call(context.Background(), http.MethodPost, client.Path("Subjects"), map[string]any{})
	require.ErrorIs(t, err, ledger.ErrBadRequest)
	assert.Contains(t, err.Error(), "Postleitzahl fehlt")
}

func TestCallBadRequestWithoutMessage(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	srv.Stub("POST", "/api/entity/v1/mandants/200/Subjects", ledgertest.Response{
		Status: http.StatusUnprocessableEntity,
		Body:   `<html>boom</html>`,
	})

	_, err := client.Call(context.Background(), http.MethodPost, client.Path("Subjects"), map[string]any{})
	require.ErrorIs(t, err, ledger.ErrBadRequest)
	assert.Contains(t, err.Error(), "HTTP 422")
}

func TestCallNotFound(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	srv.Stub("GET", "/api/entity/v1/mandants/200/Subjects(Id=7)", ledgertest.Response{
		Status: http.StatusNotFound,
		Body:   `{}`,
	})

	_, err := client.Call(context.Background(), http.MethodGet, client.KeyPath("Subjects", 7), nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCallServerError(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	srv.Stub("POST", "/api/entity/v1/mandants/200/Subjects", ledgertest.Response{
		Status: http.StatusInternalServerError,
		Body:   `{}`,
	})

	_, err := client.Call(context.Background(), http.MethodPost, client.Path("Subjects"), map[string]any{})
	assert.ErrorIs(t, err, ledger.ErrRequestFailed)
}

func TestCallTokenReusedAcrossCalls(t *testing.T) {
	srv := ledgertest.New()
	defer srv.Close()
	client := newTestClient(t, srv)

	for i := 0; i < 3; i++ {
		_, err := client.Call(context.Background(), http.MethodGet, client.Path("Subjects"), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Exchanges())
}
