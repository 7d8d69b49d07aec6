package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/application/ledgersync"
	"github.com/alpineclub/backend/internal/domain/billing"
	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/domain/member"
	"github.com/alpineclub/backend/internal/interfaces/http/dto"
)

// SubjectSyncService synchronizes a single person with the ledger.
type SubjectSyncService interface {
	Sync(ctx context.Context, p *member.Person) (*ledgersync.Result, error)
}

// SalesOrderSyncService pushes and cancels single invoices on the ledger.
type SalesOrderSyncService interface {
	Create(ctx context.Context, inv *billing.Invoice) (bool, error)
	Cancel(ctx context.Context, inv *billing.Invoice) error
}

// BulkSyncService runs the chunked bulk synchronization paths.
type BulkSyncService interface {
	SyncPeople(ctx context.Context) (*ledgersync.BulkReport, error)
	SyncInvoices(ctx context.Context) (*ledgersync.BulkReport, error)
}

// SyncHandler exposes the ledger synchronization triggers
type SyncHandler struct {
	BaseHandler
	subjects SubjectSyncService
	orders   SalesOrderSyncService
	bulk     BulkSyncService
	people   member.PersonRepository
	invoices billing.InvoiceRepository
	logger   *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(
	subjects SubjectSyncService,
	orders SalesOrderSyncService,
	bulk BulkSyncService,
	people member.PersonRepository,
	invoices billing.InvoiceRepository,
	logger *zap.Logger,
) *SyncHandler {
	return &SyncHandler{
		subjects: subjects,
		orders:   orders,
		bulk:     bulk,
		people:   people,
		invoices: invoices,
		logger:   logger,
	}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sync := rg.Group("/sync")
	{
		sync.POST("/people", h.SyncPeople)
		sync.POST("/people/:id", h.SyncPerson)
		sync.POST("/invoices", h.SyncInvoices)
		sync.POST("/invoices/:id", h.SyncInvoice)
		sync.POST("/invoices/:id/cancel", h.CancelInvoice)
	}
}

// SyncPersonResponse reports the outcome of a single person sync
type SyncPersonResponse struct {
	PersonID   int64               `json:"person_id"`
	SubjectKey *int64              `json:"subject_key,omitempty"`
	Dispatched bool                `json:"dispatched"`
	Errors     []member.FieldError `json:"errors,omitempty"`
}

// SyncPerson pushes one person to the ledger
func (h *SyncHandler) SyncPerson(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, "invalid person id")
		return
	}

	person, err := h.people.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, member.ErrPersonNotFound) {
			h.NotFound(c, "person not found")
			return
		}
		h.InternalError(c, err.Error())
		return
	}

	result, err := h.subjects.Sync(c.Request.Context(), person)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	if len(result.Errors) > 0 {
		h.UnprocessableEntity(c, SyncPersonResponse{
			PersonID: person.ID,
			Errors:   result.Errors,
		})
		return
	}
	h.Success(c, SyncPersonResponse{
		PersonID:   person.ID,
		SubjectKey: person.SubjectKey,
		Dispatched: result.Dispatched,
	})
}

// SyncPeople runs the bulk person sync
func (h *SyncHandler) SyncPeople(c *gin.Context) {
	report, err := h.bulk.SyncPeople(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	h.Success(c, report)
}

// SyncInvoiceResponse reports the outcome of a single invoice sync
type SyncInvoiceResponse struct {
	InvoiceID     int64  `json:"invoice_id"`
	SalesOrderKey *int64 `json:"sales_order_key,omitempty"`
	Dispatched    bool   `json:"dispatched"`
}

// SyncInvoice pushes one invoice to the ledger as a sales order
func (h *SyncHandler) SyncInvoice(c *gin.Context) {
	inv, ok := h.loadInvoice(c)
	if !ok {
		return
	}

	dispatched, err := h.orders.Create(c.Request.Context(), inv)
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	h.Success(c, SyncInvoiceResponse{
		InvoiceID:     inv.ID,
		SalesOrderKey: inv.SalesOrderKey,
		Dispatched:    dispatched,
	})
}

// SyncInvoices runs the bulk invoice sync
func (h *SyncHandler) SyncInvoices(c *gin.Context) {
	report, err := h.bulk.SyncInvoices(c.Request.Context())
	if err != nil {
		h.upstreamError(c, err)
		return
	}
	h.Success(c, report)
}

// CancelInvoice cancels an invoice locally and remotely
func (h *SyncHandler) CancelInvoice(c *gin.Context) {
	inv, ok := h.loadInvoice(c)
	if !ok {
		return
	}

	if err := h.orders.Cancel(c.Request.Context(), inv); err != nil {
		h.upstreamError(c, err)
		return
	}
	h.Success(c, SyncInvoiceResponse{
		InvoiceID:     inv.ID,
		SalesOrderKey: inv.SalesOrderKey,
		Dispatched:    true,
	})
}

func (h *SyncHandler) loadInvoice(c *gin.Context) (*billing.Invoice, bool) {
	id, err := pathID(c)
	if err != nil {
		h.BadRequest(c, "invalid invoice id")
		return nil, false
	}
	inv, err := h.invoices.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, billing.ErrInvoiceNotFound) {
			h.NotFound(c, "invoice not found")
			return nil, false
		}
		h.InternalError(c, err.Error())
		return nil, false
	}
	return inv, true
}

// upstreamError maps ledger client failures onto the API error codes.
func (h *SyncHandler) upstreamError(c *gin.Context, err error) {
	h.logger.Error("ledger sync failed", zap.Error(err))
	switch {
	case errors.Is(err, ledger.ErrBadRequest):
		h.ErrorWithCode(c, dto.ErrCodeBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		h.ErrorWithCode(c, dto.ErrCodeConflict, err.Error())
	case errors.Is(err, ledger.ErrAuthFailed),
		errors.Is(err, ledger.ErrRequestFailed),
		errors.Is(err, ledger.ErrInvalidResponse),
		errors.Is(err, ledger.ErrPartCountMismatch):
		h.ErrorWithCode(c, dto.ErrCodeUpstream, err.Error())
	default:
		h.InternalError(c, err.Error())
	}
}

func pathID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
