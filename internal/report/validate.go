package report

import "github.com/nao1215/clinicscan/internal/model"

// Validate summarizes the completeness of records.
// A record is incomplete when it lacks a name, an address or a phone.
func Validate(records []*model.Record) model.ValidationReport {
	var v model.ValidationReport
	for _, rec := range records {
		v.TotalClinics++
		if !rec.Has(model.FieldName) {
			v.MissingName++
		}
		if !rec.Has(model.FieldAddress) {
			v.MissingAddress++
		}
		if !rec.Has(model.FieldEmail) {
			v.MissingEmail++
		}
		if !rec.Has(model.FieldPhone) {
			v.MissingPhone++
		}
		if !rec.Has(model.FieldServices) {
			v.MissingServices++
		}
		if rec.Incomplete() {
			v.IncompleteClinics++
		}
	}
	return v
}

// Incomplete returns the records missing a critical field, in input order.
func Incomplete(records []*model.Record) []*model.Record {
	out := make([]*model.Record, 0)
	for _, rec := range records {
		if rec.Incomplete() {
			out = append(out, rec)
		}
	}
	return out
}
