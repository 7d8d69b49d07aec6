package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/domain/member"
	"github.com/alpineclub/backend/internal/infrastructure/ledgerclient"
)

// Result carries the outcome of synchronizing one person: whether anything
// was dispatched to the ledger, and the structured validation errors when
// nothing was.
type Result struct {
	Dispatched bool
	Errors     []member.FieldError
}

// SubjectSynchronizer reconciles local people against ledger subjects and
// their address, communication and customer sub-records.
type SubjectSynchronizer struct {
	client *ledgerclient.Client
	people member.PersonRepository
	logger *zap.Logger
	today  func() time.Time
}

// NewSubjectSynchronizer creates a new SubjectSynchronizer
func NewSubjectSynchronizer(client *ledgerclient.Client, people member.PersonRepository, logger *zap.Logger) *SubjectSynchronizer {
	return &SubjectSynchronizer{
		client: client,
		people: people,
		logger: logger,
		today:  time.Now,
	}
}

// Sync brings the ledger in line with one person. It returns a Result whose
// Dispatched flag reports whether any calls were issued; validation failures
// produce field errors and zero network traffic.
func (s *SubjectSynchronizer) Sync(ctx context.Context, p *member.Person) (*Result, error) {
	if errs := validatePerson(p); len(errs) > 0 {
		return &Result{Errors: errs}, nil
	}

	if !p.HasSubjectKey() {
		// First contact. The person's own id doubles as the tentative
		// subject key, so the id may already be claimed remotely.
		remote, err := s.fetchSubject(ctx, p.ID)
		if errors.Is(err, ledger.ErrNotFound) {
			return s.create(ctx, p)
		}
		if err != nil {
			return nil, err
		}
		if !matchesIdentity(p, remote) {
			s.logger.Warn("ledger subject key collision",
				zap.Int64("person_id", p.ID),
				zap.Int64("subject_id", remote.ID),
			)
			return &Result{Errors: []member.FieldError{{
				Field:   "id",
				Message: ledger.ErrSubjectKeyTaken.Error(),
			}}}, nil
		}
		if err := s.claim(ctx, p, remote.ID); err != nil {
			return nil, err
		}
		return s.update(ctx, p, remote)
	}

	remote, err := s.fetchSubject(ctx, *p.SubjectKey)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, p, remote)
}

// create issues the full create sequence: subject, address, communication,
// customer. The returned subject id is written back exactly once.
func (s *SubjectSynchronizer) create(ctx context.Context, p *member.Person) (*Result, error) {
	res, err := s.client.Call(ctx, http.MethodPost, s.client.Path("Subjects"), desiredSubject(p).Params())
	if err != nil {
		return nil, err
	}

	key := p.ID
	if id, ok := ledger.Int64(res, "id"); ok {
		key = id
	}
	if err := s.claim(ctx, p, key); err != nil {
		return nil, err
	}

	if _, err := s.client.Call(ctx, http.MethodPost, s.client.Path("Addresses"), desiredAddress(p, key, nil).Params()); err != nil {
		return nil, err
	}
	if p.Email != "" {
		if _, err := s.client.Call(ctx, http.MethodPost, s.client.Path("Communications"), desiredEmail(p, key).Params()); err != nil {
			return nil, err
		}
	}
	if _, err := s.client.Call(ctx, http.MethodPost, s.client.Path("Customers"), desiredCustomer(key).Params()); err != nil {
		return nil, err
	}

	s.logger.Info("ledger subject created", zap.Int64("person_id", p.ID), zap.Int64("subject_id", key))
	return &Result{Dispatched: true}, nil
}

// update diffs the desired attributes against the fetched remote state and
// issues only the calls needed to close the gap. An unmodified person issues
// zero write calls.
func (s *SubjectSynchronizer) update(ctx context.Context, p *member.Person, remote ledger.Subject) (*Result, error) {
	key := remote.ID

	desired := desiredSubject(p)
	desired.ID = key
	if !desired.Equal(remote) {
		if _, err := s.client.Call(ctx, http.MethodPatch, s.client.KeyPath("Subjects", key), desired.Params()); err != nil {
			return nil, err
		}
	}

	// Addresses are append-only remotely: a changed location is written as a
	// new address effective today, never as an edit.
	today := s.today()
	wantAddr := desiredAddress(p, key, nil)
	current, ok := ledger.MostRecentAddress(remote.Addresses, today)
	if !ok || !wantAddr.SameLocation(current) {
		created := wantAddr
		created.ValidFrom = &today
		if _, err := s.client.Call(ctx, http.MethodPost, s.client.Path("Addresses"), created.Params()); err != nil {
			return nil, err
		}
	}

	if p.Email != "" {
		wantComm := desiredEmail(p, key)
		currentComm, ok := remote.EmailCommunication()
		switch {
		case !ok:
			if _, err := s.client.Call(ctx, http.MethodPost, s.client.Path("Communications"), wantComm.Params()); err != nil {
				return nil, err
			}
		case currentComm.Value != wantComm.Value:
			if _, err := s.client.Call(ctx, http.MethodPatch, s.client.KeyPath("Communications", currentComm.ID), wantComm.Params()); err != nil {
				return nil, err
			}
		}
	}

	if len(remote.Customers) == 0 {
		if _, err := s.client.Call(ctx, http.MethodPost, s.client.Path("Customers"), desiredCustomer(key).Params()); err != nil {
			return nil, err
		}
	}

	return &Result{Dispatched: true}, nil
}

// SyncAllNew creates ledger records for many unlinked people through one
// batch call. Subject keys are assigned only for outcomes the ledger reports
// as created; everything else is left for the report log.
func (s *SubjectSynchronizer) SyncAllNew(ctx context.Context, people []*member.Person) (*BulkReport, error) {
	report := newBulkReport()

	outcomes, err := s.client.RunBatch(ctx, func(ctx context.Context, b *ledgerclient.Batch) error {
		for _, p := range people {
			if p.HasSubjectKey() {
				continue
			}
			if errs := validatePerson(p); len(errs) > 0 {
				report.fail(p.ID, errs...)
				continue
			}
			b.Add(http.MethodPost, s.client.Path("Subjects"), desiredSubject(p).Params(), p)
			b.Add(http.MethodPost, s.client.Path("Addresses"), desiredAddress(p, p.ID, nil).Params(), nil)
			if p.Email != "" {
				b.Add(http.MethodPost, s.client.Path("Communications"), desiredEmail(p, p.ID).Params(), nil)
			}
			b.Add(http.MethodPost, s.client.Path("Customers"), desiredCustomer(p.ID).Params(), nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, outcome := range outcomes {
		p, ok := outcome.Request.Correlation.(*member.Person)
		if !ok {
			continue
		}
		if !outcome.Created() {
			message := outcome.ErrorMessage()
			if message == "" {
				message = fmt.Sprintf("ledger returned HTTP %d", outcome.StatusCode)
			}
			report.fail(p.ID, member.FieldError{Field: "base", Message: message})
			continue
		}

		key := p.ID
		if res, err := outcome.JSON(); err == nil {
			if id, ok := ledger.Int64(res, "id"); ok {
				key = id
			}
		}
		if err := s.claim(ctx, p, key); err != nil {
			return report, err
		}
		report.Synced++
	}

	return report, nil
}

// claim writes the subject key onto the person exactly once, through the
// repository's atomic bypass-validation update.
func (s *SubjectSynchronizer) claim(ctx context.Context, p *member.Person, key int64) error {
	if err := s.people.AssignSubjectKey(ctx, p.ID, key); err != nil {
		return err
	}
	p.SubjectKey = &key
	return nil
}

// fetchSubject loads a subject expanded with its dependent records.
func (s *SubjectSynchronizer) fetchSubject(ctx context.Context, id int64) (ledger.Subject, error) {
	res, err := s.client.Call(ctx, http.MethodGet, s.client.KeyPath("Subjects", id), map[string]any{
		"$expand": "Addresses,Communications,Customers",
	})
	if err != nil {
		return ledger.Subject{}, err
	}
	subject := ledger.SubjectFromMap(res)
	if subject.ID == 0 {
		subject.ID = id
	}
	return subject, nil
}
