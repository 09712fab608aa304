package model

// Field identifies one structured field of a Record.
//
// Design decision: We use iota-based constants so fields have a fixed
// column order in every output format. String() gives the machine name
// and Column() the human-readable header.
type Field int

const (
	// FieldName is the clinic name.
	FieldName Field = iota

	// FieldAddress is the postal address.
	FieldAddress

	// FieldEmail is the email address.
	FieldEmail

	// FieldPhone is the phone number.
	FieldPhone

	// FieldServices is the list of services.
	FieldServices
)

// ServiceSeparator joins services in flat outputs such as CSV.
const ServiceSeparator = "; "

// Fields returns all fields in column order.
func Fields() []Field {
	return []Field{FieldName, FieldAddress, FieldEmail, FieldPhone, FieldServices}
}

// String returns the machine name of the field.
func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldAddress:
		return "address"
	case FieldEmail:
		return "email"
	case FieldPhone:
		return "phone"
	case FieldServices:
		return "services"
	default:
		return "unknown"
	}
}

// Column returns the column header used in CSV and table outputs.
func (f Field) Column() string {
	switch f {
	case FieldName:
		return "Name of Clinic"
	case FieldAddress:
		return "Address"
	case FieldEmail:
		return "Email"
	case FieldPhone:
		return "Phone"
	case FieldServices:
		return "Services"
	default:
		return "Unknown"
	}
}

// Critical reports whether a record missing this field is incomplete.
// Name, address and phone are the fields needed to contact a clinic.
func (f Field) Critical() bool {
	return f == FieldName || f == FieldAddress || f == FieldPhone
}
