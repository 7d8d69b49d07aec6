package models

import (
	"time"

	"github.com/alpineclub/backend/internal/domain/member"
)

// PersonModel is the persistence model for the Person domain entity.
type PersonModel struct {
	ID          int64  `gorm:"primaryKey"`
	FirstName   string `gorm:"type:varchar(100)"`
	LastName    string `gorm:"type:varchar(100)"`
	Street      string `gorm:"type:varchar(200)"`
	HouseNumber string `gorm:"type:varchar(20)"`
	ZipCode     string `gorm:"type:varchar(20)"`
	Town        string `gorm:"type:varchar(100)"`
	Country     string `gorm:"type:varchar(2)"`
	Email       string `gorm:"type:varchar(200);index"`
	Language    string `gorm:"type:varchar(5)"`
	SubjectKey  *int64 `gorm:"uniqueIndex"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (PersonModel) TableName() string {
	return "people"
}

// ToDomain converts the persistence model to a domain Person entity.
func (m *PersonModel) ToDomain() *member.Person {
	return &member.Person{
		ID:          m.ID,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		Street:      m.Street,
		HouseNumber: m.HouseNumber,
		ZipCode:     m.ZipCode,
		Town:        m.Town,
		Country:     m.Country,
		Email:       m.Email,
		Language:    m.Language,
		SubjectKey:  m.SubjectKey,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// PersonModelFromDomain converts a domain Person entity to its persistence
// model.
func PersonModelFromDomain(p *member.Person) *PersonModel {
	return &PersonModel{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Street:      p.Street,
		HouseNumber: p.HouseNumber,
		ZipCode:     p.ZipCode,
		Town:        p.Town,
		Country:     p.Country,
		Email:       p.Email,
		Language:    p.Language,
		SubjectKey:  p.SubjectKey,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
