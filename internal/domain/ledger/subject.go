package ledger

import "time"

// DateLayout is the wire format for ledger date fields.
const DateLayout = "2006-01-02"

// CommunicationTypeEmail is the ledger type code for a primary e-mail channel.
const CommunicationTypeEmail = "EMAIL"

// Subject is the ledger-side representation of a person, together with its
// dependent records when fetched expanded.
type Subject struct {
	ID        int64
	FirstName string
	LastName  string
	Language  string

	Addresses      []Address
	Communications []Communication
	Customers      []Customer
}

// SubjectFromMap builds a Subject from a decoded response payload.
func SubjectFromMap(m map[string]any) Subject {
	s := Subject{
		FirstName: Str(m, "first_name"),
		LastName:  Str(m, "last_name"),
		Language:  Str(m, "language"),
	}
	s.ID, _ = Int64(m, "id")
	for _, entry := range Maps(m, "addresses") {
		s.Addresses = append(s.Addresses, AddressFromMap(entry))
	}
	for _, entry := range Maps(m, "communications") {
		s.Communications = append(s.Communications, CommunicationFromMap(entry))
	}
	for _, entry := range Maps(m, "customers") {
		s.Customers = append(s.Customers, CustomerFromMap(entry))
	}
	return s
}

// Params renders the writable subject attributes.
func (s Subject) Params() map[string]any {
	return map[string]any{
		"id":         s.ID,
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"language":   s.Language,
	}
}

// Equal compares the writable subject attributes, ignoring dependent records.
func (s Subject) Equal(other Subject) bool {
	return s.FirstName == other.FirstName &&
		s.LastName == other.LastName &&
		s.Language == other.Language
}

// EmailCommunication returns the subject's e-mail channel, if any.
func (s Subject) EmailCommunication() (Communication, bool) {
	for _, c := range s.Communications {
		if c.Type == CommunicationTypeEmail {
			return c, true
		}
	}
	return Communication{}, false
}

// Address is one versioned ledger address. Addresses are append-only on the
// remote side: a changed address is written as a new record, never edited.
type Address struct {
	ID          int64
	SubjectID   int64
	Street      string
	HouseNumber string
	PostCode    string
	City        string
	CountryID   string
	ValidFrom   *time.Time
}

// AddressFromMap builds an Address from a decoded response payload.
func AddressFromMap(m map[string]any) Address {
	a := Address{
		Street:      Str(m, "street"),
		HouseNumber: Str(m, "house_number"),
		PostCode:    Str(m, "post_code"),
		City:        Str(m, "city"),
		CountryID:   Str(m, "country_id"),
	}
	a.ID, _ = Int64(m, "id")
	a.SubjectID, _ = Int64(m, "subject_id")
	if raw := Str(m, "valid_from"); raw != "" {
		if t, err := time.Parse(DateLayout, raw); err == nil {
			a.ValidFrom = &t
		}
	}
	return a
}

// Params renders the writable address attributes.
func (a Address) Params() map[string]any {
	p := map[string]any{
		"subject_id":   a.SubjectID,
		"street":       a.Street,
		"house_number": a.HouseNumber,
		"post_code":    a.PostCode,
		"city":         a.City,
		"country_id":   a.CountryID,
	}
	if a.ValidFrom != nil {
		p["valid_from"] = a.ValidFrom.Format(DateLayout)
	}
	return p
}

// EffectiveFrom returns the date this address became effective. A missing
// valid_from counts as effective today, which makes an undated address sort
// newer than any dated one.
func (a Address) EffectiveFrom(today time.Time) time.Time {
	if a.ValidFrom == nil {
		return today
	}
	return *a.ValidFrom
}

// SameLocation compares the location attributes, ignoring keys and dates.
func (a Address) SameLocation(other Address) bool {
	return a.Street == other.Street &&
		a.HouseNumber == other.HouseNumber &&
		a.PostCode == other.PostCode &&
		a.City == other.City &&
		a.CountryID == other.CountryID
}

// MostRecentAddress selects the address with the latest effective date.
func MostRecentAddress(addrs []Address, today time.Time) (Address, bool) {
	if len(addrs) == 0 {
		return Address{}, false
	}
	best := addrs[0]
	for _, a := range addrs[1:] {
		if a.EffectiveFrom(today).After(best.EffectiveFrom(today)) {
			best = a
		}
	}
	return best, true
}

// Communication is one ledger contact channel of a subject.
type Communication struct {
	ID        int64
	SubjectID int64
	Type      string
	Value     string
}

// CommunicationFromMap builds a Communication from a decoded response payload.
func CommunicationFromMap(m map[string]any) Communication {
	c := Communication{
		Type:  Str(m, "type"),
		Value: Str(m, "value"),
	}
	c.ID, _ = Int64(m, "id")
	c.SubjectID, _ = Int64(m, "subject_id")
	return c
}

// Params renders the writable communication attributes.
func (c Communication) Params() map[string]any {
	return map[string]any{
		"subject_id": c.SubjectID,
		"type":       c.Type,
		"value":      c.Value,
	}
}

// Customer is the ledger's debitor record of a subject. A subject carries at
// most one customer record.
type Customer struct {
	ID        int64
	SubjectID int64
}

// CustomerFromMap builds a Customer from a decoded response payload.
func CustomerFromMap(m map[string]any) Customer {
	c := Customer{}
	c.ID, _ = Int64(m, "id")
	c.SubjectID, _ = Int64(m, "subject_id")
	return c
}

// Params renders the writable customer attributes.
func (c Customer) Params() map[string]any {
	return map[string]any{"subject_id": c.SubjectID}
}
