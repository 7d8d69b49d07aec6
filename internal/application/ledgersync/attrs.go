package ledgersync

import (
	"time"

	"github.com/alpineclub/backend/internal/domain/billing"
	"github.com/alpineclub/backend/internal/domain/ledger"
	"github.com/alpineclub/backend/internal/domain/member"
)

// Desired-attribute builders compute the subset of a local entity the ledger
// should reflect. The same builders feed both the single-call and the batched
// transport; only the dispatch differs.

func desiredSubject(p *member.Person) ledger.Subject {
	return ledger.Subject{
		ID:        p.ID,
		FirstName: ledger.Trunc(p.FirstName, ledger.LimitFirstName),
		LastName:  ledger.Trunc(p.LastName, ledger.LimitLastName),
		Language:  p.Language,
	}
}

func desiredAddress(p *member.Person, subjectID int64, validFrom *time.Time) ledger.Address {
	return ledger.Address{
		SubjectID:   subjectID,
		Street:      ledger.Trunc(p.Street, ledger.LimitStreet),
		HouseNumber: ledger.Trunc(p.HouseNumber, ledger.LimitHouseNumber),
		PostCode:    ledger.Trunc(p.ZipCode, ledger.LimitPostCode),
		City:        ledger.Trunc(p.Town, ledger.LimitCity),
		CountryID:   ledger.Trunc(p.Country, ledger.LimitCountry),
		ValidFrom:   validFrom,
	}
}

func desiredEmail(p *member.Person, subjectID int64) ledger.Communication {
	return ledger.Communication{
		SubjectID: subjectID,
		Type:      ledger.CommunicationTypeEmail,
		Value:     ledger.Trunc(p.Email, ledger.LimitEmail),
	}
}

func desiredCustomer(subjectID int64) ledger.Customer {
	return ledger.Customer{SubjectID: subjectID}
}

func desiredSalesOrder(inv *billing.Invoice) ledger.SalesOrder {
	order := ledger.SalesOrder{
		CustomerID:   inv.PersonID,
		DocumentDate: inv.IssuedAt.Format(ledger.DateLayout),
		Reference:    inv.Reference,
		Currency:     "CHF",
		UserFields: map[string]any{
			"invoice_id": inv.ID,
			"title":      ledger.Trunc(inv.Title, ledger.LimitText),
		},
	}
	for i, pos := range inv.Positions {
		count := pos.Count
		if count == 0 {
			count = 1
		}
		userFields := map[string]any{}
		if pos.Grouping != "" {
			userFields["grouping"] = pos.Grouping
		}
		if pos.Details != "" {
			userFields["details"] = ledger.Trunc(pos.Details, ledger.LimitText)
		}
		if pos.OtherDebitorID != "" {
			userFields["other_debitor_id"] = pos.OtherDebitorID
			userFields["other_debitor_amount"] = pos.OtherDebitorAmount
		}
		if pos.OtherCreditorID != "" {
			userFields["other_creditor_id"] = pos.OtherCreditorID
		}
		order.Positions = append(order.Positions, ledger.SalesOrderPosition{
			Number:        i + 1,
			Description:   ledger.Trunc(pos.Name, ledger.LimitText),
			ArticleNumber: pos.ArticleNumber,
			Amount:        pos.Amount,
			Count:         count,
			CostCenter:    pos.CostCenter,
			CostUnit:      pos.CostUnit,
			UserFields:    userFields,
		})
	}
	return order
}

// validatePerson checks the fields the ledger requires before any network
// call is attempted.
func validatePerson(p *member.Person) []member.FieldError {
	var errs []member.FieldError
	if p.Town == "" {
		errs = append(errs, member.FieldError{Field: "town", Message: "is required for ledger synchronization"})
	}
	if p.ZipCode == "" {
		errs = append(errs, member.FieldError{Field: "zip_code", Message: "is required for ledger synchronization"})
	}
	return errs
}

// matchesIdentity implements the first-contact claim check: last name, first
// name and primary e-mail only. The address is deliberately not compared.
func matchesIdentity(p *member.Person, remote ledger.Subject) bool {
	if remote.LastName != p.LastName || remote.FirstName != p.FirstName {
		return false
	}
	email, ok := remote.EmailCommunication()
	if !ok {
		return p.Email == ""
	}
	return email.Value == p.Email
}
