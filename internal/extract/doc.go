// Package extract recovers clinic records from archived HTML pages.
//
// Pages come from years of site redesigns, so no single selector finds a
// field on every capture. Each field is therefore an ordered cascade of
// rules (see Extractor): container-scoped selectors first, then
// progressively looser fallbacks. The first rule producing a value wins.
//
// The site vocabulary (greetings, index titles, street words, the shared
// phone number) lives in Rules and can be replaced from the config file.
//
// # Usage
//
//	doc, err := extract.Parse(body)
//	if err != nil {
//		return err
//	}
//	ex := extract.NewExtractor(extract.DefaultRules())
//	rec, ok := ex.ExtractRecord(doc, "https://www.myfootdr.com.au/our-clinics/sunshine-coast/noosa", 20250708180027)
package extract
