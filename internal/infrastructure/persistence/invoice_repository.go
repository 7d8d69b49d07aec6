package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/alpineclub/backend/internal/domain/billing"
	"github.com/alpineclub/backend/internal/infrastructure/persistence/models"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by id
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id int64) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpenWithoutKey lists open invoices not yet linked remotely
func (r *GormInvoiceRepository) FindOpenWithoutKey(ctx context.Context, limit int) ([]*billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("state = ? AND sales_order_key IS NULL", string(billing.InvoiceStateOpen)).
		Order("id asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	invoices := make([]*billing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = rows[i].ToDomain()
	}
	return invoices, nil
}

// Save persists an invoice
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	model, err := models.InvoiceModelFromDomain(invoice)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return err
	}
	invoice.ID = model.ID
	invoice.CreatedAt = model.CreatedAt
	invoice.UpdatedAt = model.UpdatedAt
	return nil
}

// AssignSalesOrderKey writes the sales order key as a single column update,
// bypassing hooks and version tracking.
func (r *GormInvoiceRepository) AssignSalesOrderKey(ctx context.Context, id int64, key int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ?", id).
		UpdateColumn("sales_order_key", key)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

// MarkCancelled flips the state column atomically, same bypass rules.
func (r *GormInvoiceRepository) MarkCancelled(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ?", id).
		UpdateColumn("state", string(billing.InvoiceStateCancelled))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return billing.ErrInvoiceNotFound
	}
	return nil
}

var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
