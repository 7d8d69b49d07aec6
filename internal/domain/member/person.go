package member

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPersonNotFound = errors.New("member: person not found")
)

// Person is a club member as the synchronization subsystem sees it. The id
// doubles as the tentative ledger subject key (shared numeric id convention).
type Person struct {
	ID          int64
	FirstName   string
	LastName    string
	Street      string
	HouseNumber string
	ZipCode     string
	Town        string
	Country     string
	Email       string
	Language    string

	// SubjectKey is the claimed ledger subject key. Written exactly once
	// after a successful create or claim, never overwritten.
	SubjectKey *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSubjectKey reports whether the person is already linked remotely.
func (p *Person) HasSubjectKey() bool {
	return p.SubjectKey != nil
}

// FieldError is one structured validation failure, keyed by the local field
// it concerns, for the import report log.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PersonRepository provides access to persisted people.
type PersonRepository interface {
	FindByID(ctx context.Context, id int64) (*Person, error)
	// FindPending lists people without a subject key, oldest first.
	FindPending(ctx context.Context, limit int) ([]*Person, error)
	Save(ctx context.Context, person *Person) error
	// AssignSubjectKey writes the subject key as a single atomic column
	// update, bypassing hooks, validation and version tracking.
	AssignSubjectKey(ctx context.Context, id int64, key int64) error
}
