package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/alpineclub/backend/internal/domain/member"
	"github.com/alpineclub/backend/internal/infrastructure/persistence/models"
)

// GormPersonRepository implements PersonRepository using GORM
type GormPersonRepository struct {
	db *gorm.DB
}

// NewGormPersonRepository creates a new GormPersonRepository
func NewGormPersonRepository(db *gorm.DB) *GormPersonRepository {
	return &GormPersonRepository{db: db}
}

// FindByID finds a person by id
func (r *GormPersonRepository) FindByID(ctx context.Context, id int64) (*member.Person, error) {
	var model models.PersonModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, member.ErrPersonNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindPending lists people without a subject key, oldest first
func (r *GormPersonRepository) FindPending(ctx context.Context, limit int) ([]*member.Person, error) {
	var rows []models.PersonModel
	if err := r.db.WithContext(ctx).
		Where("subject_key IS NULL").
		Order("id asc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	people := make([]*member.Person, len(rows))
	for i := range rows {
		people[i] = rows[i].ToDomain()
	}
	return people, nil
}

// Save persists a person
func (r *GormPersonRepository) Save(ctx context.Context, person *member.Person) error {
	model := models.PersonModelFromDomain(person)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return err
	}
	person.CreatedAt = model.CreatedAt
	person.UpdatedAt = model.UpdatedAt
	return nil
}

// AssignSubjectKey writes the subject key as a single column update.
// UpdateColumn skips hooks and does not touch updated_at, so synchronization
// never triggers unrelated side effects on the record.
func (r *GormPersonRepository) AssignSubjectKey(ctx context.Context, id int64, key int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.PersonModel{}).
		Where("id = ?", id).
		UpdateColumn("subject_key", key)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return member.ErrPersonNotFound
	}
	return nil
}

var _ member.PersonRepository = (*GormPersonRepository)(nil)
