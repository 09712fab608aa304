package extract

import (
	"github.com/nao1215/clinicscan/internal/model"
)

// IsEntityPage reports whether doc is a clinic detail page: at least two of
// name, address and phone are present, or the first heading starts with a
// greeting.
func (e *Extractor) IsEntityPage(doc *Document) bool {
	_, hasName := e.Name(doc)
	_, hasAddress := e.Address(doc)
	_, hasPhone := e.Phone(doc)
	return e.classify(doc, hasName, hasAddress, hasPhone)
}

func (e *Extractor) classify(doc *Document, signals ...bool) bool {
	present := 0
	for _, ok := range signals {
		if ok {
			present++
		}
	}
	if present >= 2 {
		return true
	}
	return e.hasGreeting(CollapsedText(doc.find("h1").First()))
}

// ExtractRecord builds the clinic record of doc.
// It returns false when doc is not a clinic page or no field could be
// extracted at all.
func (e *Extractor) ExtractRecord(doc *Document, source string, captured int64) (*model.Record, bool) {
	name, hasName := e.Name(doc)
	address, hasAddress := e.Address(doc)
	phone, hasPhone := e.Phone(doc)
	if !e.classify(doc, hasName, hasAddress, hasPhone) {
		return nil, false
	}

	email, _ := e.Email(doc)
	services := e.Services(doc)
	rec := model.NewRecord(source, name, address, email, phone, services, captured)
	if rec.Empty() {
		return nil, false
	}
	return rec, true
}
