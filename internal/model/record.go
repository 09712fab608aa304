package model

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Record is a clinic record extracted from one archived page.
//
// Design decision: Records are never mutated after NewRecord returns.
// Consolidation replaces the record held for a dedup key instead of
// patching fields, so a record always describes exactly one observation.
type Record struct {
	// SourceAddress is the canonical original address the record was extracted from.
	SourceAddress string `json:"source_address"`

	// Name is the clinic name.
	Name string `json:"name,omitempty"`

	// Address is the postal address.
	Address string `json:"address,omitempty"`

	// Email is the clinic email address.
	Email string `json:"email,omitempty"`

	// Phone is the clinic phone number as displayed on the page.
	Phone string `json:"phone,omitempty"`

	// Services lists the services offered, in page order.
	Services []string `json:"services"`

	// CaptureTimestamp is the timestamp of the capture the record came from.
	// 0 when the capture address carried no timestamp.
	CaptureTimestamp int64 `json:"capture_timestamp,omitempty"`
}

// NewRecord creates a Record. The services slice is copied.
func NewRecord(source, name, address, email, phone string, services []string, captured int64) *Record {
	return &Record{
		SourceAddress:    source,
		Name:             name,
		Address:          address,
		Email:            email,
		Phone:            phone,
		Services:         append(make([]string, 0, len(services)), services...),
		CaptureTimestamp: captured,
	}
}

// Clone returns a copy of r that shares no memory with it.
func (r *Record) Clone() *Record {
	return NewRecord(r.SourceAddress, r.Name, r.Address, r.Email, r.Phone, r.Services, r.CaptureTimestamp)
}

// Equal reports whether r and other hold the same values.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.SourceAddress == other.SourceAddress &&
		r.Name == other.Name &&
		r.Address == other.Address &&
		r.Email == other.Email &&
		r.Phone == other.Phone &&
		r.CaptureTimestamp == other.CaptureTimestamp &&
		slices.Equal(r.Services, other.Services)
}

// DedupKey identifies one real-world clinic across pages.
// Either half may be empty.
type DedupKey struct {
	Name    string
	Address string
}

// String returns a printable form of the key.
func (k DedupKey) String() string {
	return k.Name + " | " + k.Address
}

// Less orders keys by name, then address.
func (k DedupKey) Less(other DedupKey) bool {
	if k.Name != other.Name {
		return k.Name < other.Name
	}
	return k.Address < other.Address
}

// NormalizeKeyPart collapses whitespace and lower-cases a value for use in a DedupKey.
func NormalizeKeyPart(value string) string {
	collapsed := strings.Join(strings.Fields(value), " ")
	if collapsed == "" {
		return ""
	}
	// Casers are stateful and must not be shared between goroutines.
	return cases.Lower(language.Und).String(collapsed)
}

// Key returns the dedup key of the record.
func (r *Record) Key() DedupKey {
	return DedupKey{
		Name:    NormalizeKeyPart(r.Name),
		Address: NormalizeKeyPart(r.Address),
	}
}

// Has reports whether the given field is non-empty.
func (r *Record) Has(f Field) bool {
	switch f {
	case FieldName:
		return r.Name != ""
	case FieldAddress:
		return r.Address != ""
	case FieldEmail:
		return r.Email != ""
	case FieldPhone:
		return r.Phone != ""
	case FieldServices:
		return len(r.Services) > 0
	default:
		return false
	}
}

// Value returns the field as it is written to flat outputs.
// Services are joined with "; ".
func (r *Record) Value(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldAddress:
		return r.Address
	case FieldEmail:
		return r.Email
	case FieldPhone:
		return r.Phone
	case FieldServices:
		return strings.Join(r.Services, ServiceSeparator)
	default:
		return ""
	}
}

// Score returns the completeness score: the number of non-empty fields.
// A non-empty services list counts as one.
func (r *Record) Score() int {
	score := 0
	for _, f := range Fields() {
		if r.Has(f) {
			score++
		}
	}
	return score
}

// Missing returns the fields the record lacks, in column order.
func (r *Record) Missing() []Field {
	missing := make([]Field, 0, len(Fields()))
	for _, f := range Fields() {
		if !r.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Incomplete reports whether a critical field (name, address, phone) is missing.
func (r *Record) Incomplete() bool {
	return slices.ContainsFunc(r.Missing(), Field.Critical)
}

// Empty reports whether every field is empty.
func (r *Record) Empty() bool {
	return r.Score() == 0
}
