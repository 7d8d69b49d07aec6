package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alpineclub/backend/internal/domain/member"
	"github.com/alpineclub/backend/internal/infrastructure/persistence/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PersonModel{}, &models.InvoiceModel{}))
	return db
}

func testDBPerson(id int64) *member.Person {
	return &member.Person{
		ID:        id,
		FirstName: "Max",
		LastName:  "Muster",
		ZipCode:   "3000",
		Town:      "Bern",
		Country:   "CH",
		Email:     "max@example.com",
		Language:  "de",
	}
}

func TestPersonRepositorySaveAndFind(t *testing.T) {
	repo := NewGormPersonRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testDBPerson(7)))

	found, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Muster", found.LastName)
	assert.Nil(t, found.SubjectKey)
}

func TestPersonRepositoryFindByIDNotFound(t *testing.T) {
	repo := NewGormPersonRepository(setupTestDB(t))

	_, err := repo.FindByID(context.Background(), 404)
	assert.ErrorIs(t, err, member.ErrPersonNotFound)
}

func TestPersonRepositoryFindPending(t *testing.T) {
	repo := NewGormPersonRepository(setupTestDB(t))
	ctx := context.Background()

	linked := testDBPerson(5)
	key := int64(5)
	linked.SubjectKey = &key
	require.NoError(t, repo.Save(ctx, linked))
	require.NoError(t, repo.Save(ctx, testDBPerson(9)))
	require.NoError(t, repo.Save(ctx, testDBPerson(7)))

	pending, err := repo.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(7), pending[0].ID)
	assert.Equal(t, int64(9), pending[1].ID)

	limited, err := repo.FindPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPersonRepositoryAssignSubjectKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormPersonRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testDBPerson(7)))
	before, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, repo.AssignSubjectKey(ctx, 7, 42))

	after, err := repo.FindByID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, after.SubjectKey)
	assert.Equal(t, int64(42), *after.SubjectKey)

	// Single-column update: the record is otherwise untouched.
	assert.Equal(t, before.LastName, after.LastName)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestPersonRepositoryAssignSubjectKeyNotFound(t *testing.T) {
	repo := NewGormPersonRepository(setupTestDB(t))

	err := repo.AssignSubjectKey(context.Background(), 404, 42)
	assert.ErrorIs(t, err, member.ErrPersonNotFound)
}
