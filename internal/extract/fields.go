package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Extractor recovers clinic fields from documents.
// Each field is an ordered cascade of rules; the first rule producing a
// value wins. An Extractor is immutable and safe for concurrent use.
type Extractor struct {
	rules          Rules
	excludedTitles map[string]bool
	addressWords   map[string]bool
	genericPhones  map[string]bool
	markers        []string
	greetings      []string
}

// NewExtractor creates an Extractor for the given rules.
func NewExtractor(rules Rules) *Extractor {
	if rules.MaxServiceLength <= 0 {
		rules.MaxServiceLength = DefaultMaxServiceLength
	}
	e := &Extractor{
		rules:          rules,
		excludedTitles: lowerSet(rules.ExcludedTitles),
		addressWords:   lowerSet(append(append([]string{}, rules.StreetWords...), rules.RegionAbbreviations...)),
		genericPhones:  make(map[string]bool, len(rules.GenericPhones)),
		markers:        lowerList(rules.ServiceMarkers),
		greetings:      lowerList(rules.GreetingPrefixes),
	}
	for _, phone := range rules.GenericPhones {
		e.genericPhones[phoneDigits(phone)] = true
	}
	return e
}

// Rules returns the rules the extractor was built with.
func (e *Extractor) Rules() Rules {
	return e.rules
}

// Name extracts the clinic name.
//
// Order: the page heading (greeting stripped, index titles rejected), the last
// breadcrumb item, then the first segment of the document title.
func (e *Extractor) Name(doc *Document) (string, bool) {
	for _, selector := range e.rules.HeadingSelectors {
		heading := doc.find(selector).First()
		if heading.Length() == 0 {
			continue
		}
		cleaned := e.stripGreeting(CollapsedText(heading))
		if cleaned != "" && !e.excluded(cleaned) {
			return cleaned, true
		}
	}

	for _, selector := range e.rules.BreadcrumbSelectors {
		crumb := doc.find(selector).First()
		if crumb.Length() == 0 {
			continue
		}
		text := CollapsedText(crumb)
		if text != "" && !e.excluded(text) {
			return text, true
		}
	}

	title := CollapsedText(doc.find("title").First())
	for _, sep := range e.rules.TitleSeparators {
		if before, _, found := strings.Cut(title, sep); found {
			title = before
			break
		}
	}
	if cleaned := e.stripGreeting(title); cleaned != "" {
		return cleaned, true
	}
	return "", false
}

// Address extracts the postal address: the first content anchor whose text
// looks like an address, else the first such p, div or span.
func (e *Extractor) Address(doc *Document) (string, bool) {
	for _, container := range e.rules.Containers {
		var found string
		doc.find(container + " a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			text := CollapsedText(a)
			if e.LooksLikeAddress(text) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}

	for _, container := range e.rules.Containers {
		root := doc.find(container).First()
		if root.Length() == 0 {
			continue
		}
		var found string
		root.Find("p, div, span").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := CollapsedText(el)
			if e.LooksLikeAddress(text) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

var addressTokenSplit = regexp.MustCompile(`[\s,]+`)

// LooksLikeAddress reports whether text resembles a postal address: it has a
// digit and a street word or region abbreviation.
func (e *Extractor) LooksLikeAddress(text string) bool {
	text = NormalizeWhitespace(text)
	if text == "" || strings.IndexFunc(text, unicode.IsDigit) < 0 {
		return false
	}
	for _, token := range addressTokenSplit.Split(strings.ToLower(text), -1) {
		if e.addressWords[token] {
			return true
		}
	}
	return false
}

// Email extracts the first mailto: address, preferring content containers.
func (e *Extractor) Email(doc *Document) (string, bool) {
	for _, selector := range e.scopedSelectors(`a[href^="mailto:"]`) {
		var found string
		doc.find(selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if email := emailFromHref(href); email != "" {
				found = email
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// emailFromHref extracts the address of a mailto: link, without parameters.
func emailFromHref(href string) string {
	scheme, rest, ok := strings.Cut(href, ":")
	if !ok || !strings.EqualFold(scheme, "mailto") {
		return ""
	}
	email, _, _ := strings.Cut(rest, "?")
	return strings.TrimSpace(email)
}

// Phone extracts the clinic phone number from tel: links, preferring content
// containers. Generic numbers are skipped unless nothing else is present.
func (e *Extractor) Phone(doc *Document) (string, bool) {
	var candidates []string
	for _, selector := range e.scopedSelectors(`a[href^="tel:"]`) {
		doc.find(selector).Each(func(_ int, a *goquery.Selection) {
			text := CollapsedText(a)
			if text == "" {
				href, _ := a.Attr("href")
				if _, number, ok := strings.Cut(href, ":"); ok {
					text = NormalizeWhitespace(number)
				}
			}
			if text != "" {
				candidates = append(candidates, text)
			}
		})
	}

	for _, candidate := range candidates {
		if !e.IsGenericPhone(candidate) {
			return candidate, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], true
	}
	return "", false
}

// IsGenericPhone reports whether a phone number is a shared contact number.
func (e *Extractor) IsGenericPhone(phone string) bool {
	return e.genericPhones[phoneDigits(phone)]
}

func phoneDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// Services extracts the list of services.
//
// A content text node containing a marker phrase selects the next list in
// the document. Without a usable marker, the first content list in document
// order whose items are all short enough is taken. The result is never nil.
func (e *Extractor) Services(doc *Document) []string {
	var services []string
	doc.find(strings.Join(e.rules.Containers, ", ")).EachWithBreak(func(_ int, container *goquery.Selection) bool {
		for _, node := range textNodes(container.Get(0)) {
			if !e.hasMarker(node.Data) {
				continue
			}
			list := findNext(node, "ul")
			if list == nil {
				continue
			}
			services = listItems(goquery.NewDocumentFromNode(list).Selection, 0)
			if len(services) > 0 {
				return false
			}
		}
		return true
	})
	if len(services) > 0 {
		return services
	}

	lists := make([]string, 0, len(e.rules.Containers))
	for _, container := range e.rules.Containers {
		lists = append(lists, container+" ul")
	}
	doc.find(strings.Join(lists, ", ")).EachWithBreak(func(_ int, list *goquery.Selection) bool {
		services = listItems(list, e.rules.MaxServiceLength)
		return len(services) == 0
	})
	if len(services) > 0 {
		return services
	}
	return []string{}
}

// listItems returns the non-empty item texts of a list. With maxLen > 0 the
// whole list is rejected when an item is longer than maxLen characters.
func listItems(list *goquery.Selection, maxLen int) []string {
	var items []string
	rejected := false
	list.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		text := CollapsedText(li)
		if text == "" {
			return true
		}
		if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
			rejected = true
			return false
		}
		items = append(items, text)
		return true
	})
	if rejected {
		return nil
	}
	return items
}

func (e *Extractor) hasMarker(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, marker := range e.markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// stripGreeting normalizes a heading and removes a leading greeting.
func (e *Extractor) stripGreeting(text string) string {
	cleaned := NormalizeWhitespace(text)
	for _, prefix := range e.greetings {
		if len(cleaned) >= len(prefix) && strings.EqualFold(cleaned[:len(prefix)], prefix) {
			return strings.TrimSpace(cleaned[len(prefix):])
		}
	}
	return cleaned
}

// hasGreeting reports whether text starts with a greeting prefix.
func (e *Extractor) hasGreeting(text string) bool {
	lower := strings.ToLower(NormalizeWhitespace(text)) + " "
	for _, prefix := range e.greetings {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (e *Extractor) excluded(name string) bool {
	return e.excludedTitles[strings.ToLower(name)]
}

// scopedSelectors returns selector under each content container followed by
// selector on its own.
func (e *Extractor) scopedSelectors(selector string) []string {
	selectors := make([]string, 0, len(e.rules.Containers)+1)
	for _, container := range e.rules.Containers {
		selectors = append(selectors, container+" "+selector)
	}
	return append(selectors, selector)
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

func lowerList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}
