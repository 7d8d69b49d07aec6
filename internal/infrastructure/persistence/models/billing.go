package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alpineclub/backend/internal/domain/billing"
)

// InvoiceModel is the persistence model for the Invoice domain entity.
// Positions are stored as a JSON document: they are value objects produced by
// the fee calculators and only read back to build sales order payloads.
type InvoiceModel struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	PersonID      int64           `gorm:"not null;index"`
	Title         string          `gorm:"type:varchar(200)"`
	Reference     string          `gorm:"type:varchar(100)"`
	Total         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	State         string          `gorm:"type:varchar(20);not null;default:'open';index"`
	IssuedAt      time.Time
	Positions     string `gorm:"type:jsonb"`
	SalesOrderKey *int64 `gorm:"uniqueIndex"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	var positions []billing.InvoicePosition
	if m.Positions != "" {
		_ = json.Unmarshal([]byte(m.Positions), &positions)
	}
	return &billing.Invoice{
		ID:            m.ID,
		PersonID:      m.PersonID,
		Title:         m.Title,
		Reference:     m.Reference,
		Total:         m.Total,
		State:         billing.InvoiceState(m.State),
		IssuedAt:      m.IssuedAt,
		Positions:     positions,
		SalesOrderKey: m.SalesOrderKey,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// InvoiceModelFromDomain converts a domain Invoice entity to its persistence
// model.
func InvoiceModelFromDomain(i *billing.Invoice) (*InvoiceModel, error) {
	positions, err := json.Marshal(i.Positions)
	if err != nil {
		return nil, err
	}
	return &InvoiceModel{
		ID:            i.ID,
		PersonID:      i.PersonID,
		Title:         i.Title,
		Reference:     i.Reference,
		Total:         i.Total,
		State:         string(i.State),
		IssuedAt:      i.IssuedAt,
		Positions:     string(positions),
		SalesOrderKey: i.SalesOrderKey,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}, nil
}
