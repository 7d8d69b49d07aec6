package ledgersync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/domain/billing"
	"github.com/alpineclub/backend/internal/domain/member"
	"github.com/alpineclub/backend/internal/infrastructure/config"
	"github.com/alpineclub/backend/internal/infrastructure/ledgerclient"
	"github.com/alpineclub/backend/internal/infrastructure/ledgerclient/ledgertest"
)

func testClient(t *testing.T, srv *ledgertest.Server) *ledgerclient.Client {
	t.Helper()
	client, err := ledgerclient.NewClient(&config.LedgerConfig{
		Host:              srv.URL(),
		Mandant:           "200",
		Username:          "club",
		Password:          "secret",
		WorkflowNamespace: "SalesOrderWorkflow",
		Timeout:           5 * time.Second,
		BatchTimeout:      5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func testPerson() *member.Person {
	return &member.Person{
		ID:          7,
		FirstName:   "Max",
		LastName:    "Muster",
		Street:      "Bergweg",
		HouseNumber: "4a",
		ZipCode:     "3000",
		Town:        "Bern",
		Country:     "CH",
		Email:       "max@example.com",
		Language:    "de",
	}
}

func testInvoice() *billing.Invoice {
	return &billing.Invoice{
		ID:        31,
		PersonID:  7,
		Title:     "Membership 2026",
		Reference: "INV-31",
		Total:     decimal.NewFromInt(80),
		State:     billing.InvoiceStateOpen,
		IssuedAt:  time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Positions: []billing.InvoicePosition{
			billing.NewInvoicePosition("Jahresbeitrag", decimal.NewFromInt(80)),
		},
	}
}

// fakePersonRepo is an in-memory PersonRepository recording key assignments.
type fakePersonRepo struct {
	people   map[int64]*member.Person
	pending  []*member.Person
	assigned map[int64]int64
}

func newFakePersonRepo(people ...*member.Person) *fakePersonRepo {
	r := &fakePersonRepo{
		people:   make(map[int64]*member.Person),
		assigned: make(map[int64]int64),
	}
	for _, p := range people {
		r.people[p.ID] = p
		if !p.HasSubjectKey() {
			r.pending = append(r.pending, p)
		}
	}
	return r
}

func (r *fakePersonRepo) FindByID(_ context.Context, id int64) (*member.Person, error) {
	p, ok := r.people[id]
	if !ok {
		return nil, member.ErrPersonNotFound
	}
	return p, nil
}

func (r *fakePersonRepo) FindPending(_ context.Context, limit int) ([]*member.Person, error) {
	if limit < len(r.pending) {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakePersonRepo) Save(_ context.Context, p *member.Person) error {
	r.people[p.ID] = p
	return nil
}

func (r *fakePersonRepo) AssignSubjectKey(_ context.Context, id int64, key int64) error {
	if _, ok := r.people[id]; !ok {
		return member.ErrPersonNotFound
	}
	r.assigned[id] = key
	return nil
}

// fakeInvoiceRepo is an in-memory InvoiceRepository recording key assignments
// and cancellations.
type fakeInvoiceRepo struct {
	invoices  map[int64]*billing.Invoice
	open      []*billing.Invoice
	assigned  map[int64]int64
	cancelled []int64
}

func newFakeInvoiceRepo(invoices ...*billing.Invoice) *fakeInvoiceRepo {
	r := &fakeInvoiceRepo{
		invoices: make(map[int64]*billing.Invoice),
		assigned: make(map[int64]int64),
	}
	for _, inv := range invoices {
		r.invoices[inv.ID] = inv
		if inv.State == billing.InvoiceStateOpen && !inv.HasSalesOrderKey() {
			r.open = append(r.open, inv)
		}
	}
	return r
}

func (r *fakeInvoiceRepo) FindByID(_ context.Context, id int64) (*billing.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, billing.ErrInvoiceNotFound
	}
	return inv, nil
}

func (r *fakeInvoiceRepo) FindOpenWithoutKey(_ context.Context, limit int) ([]*billing.Invoice, error) {
	if limit < len(r.open) {
		return r.open[:limit], nil
	}
	return r.open, nil
}

func (r *fakeInvoiceRepo) Save(_ context.Context, inv *billing.Invoice) error {
	r.invoices[inv.ID] = inv
	return nil
}

func (r *fakeInvoiceRepo) AssignSalesOrderKey(_ context.Context, id int64, key int64) error {
	if _, ok := r.invoices[id]; !ok {
		return billing.ErrInvoiceNotFound
	}
	r.assigned[id] = key
	return nil
}

func (r *fakeInvoiceRepo) MarkCancelled(_ context.Context, id int64) error {
	if _, ok := r.invoices[id]; !ok {
		return billing.ErrInvoiceNotFound
	}
	r.cancelled = append(r.cancelled, id)
	return nil
}
