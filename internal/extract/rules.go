package extract

// Rules is the site vocabulary the extractors work with.
// Every list is matched case-insensitively.
//
// Design decision: These are data, not code. The defaults describe the
// My FootDr clinic pages; another clinic directory with its own index titles,
// national number or region names only needs a different Rules value.
type Rules struct {
	// Containers are the primary-content containers, in priority order.
	Containers []string

	// HeadingSelectors locate the page heading, in priority order.
	HeadingSelectors []string

	// GreetingPrefixes are stripped from headings ("Welcome to Noosa" -> "Noosa").
	// A first h1 starting with one of them also marks the page as a clinic page.
	GreetingPrefixes []string

	// ExcludedTitles are headings of index pages that never name a clinic.
	ExcludedTitles []string

	// BreadcrumbSelectors locate the last breadcrumb item, in priority order.
	BreadcrumbSelectors []string

	// TitleSeparators split a document title into name and site parts.
	// The first separator present wins.
	TitleSeparators []string

	// StreetWords are street-type words and abbreviations.
	StreetWords []string

	// RegionAbbreviations are state or territory abbreviations.
	RegionAbbreviations []string

	// ServiceMarkers are phrases introducing a list of services.
	ServiceMarkers []string

	// GenericPhones are digit-only numbers shared by all clinics.
	GenericPhones []string

	// MaxServiceLength is the longest item a fallback services list may hold.
	MaxServiceLength int
}

// DefaultMaxServiceLength is the default item length limit of fallback service lists.
const DefaultMaxServiceLength = 120

// DefaultRules returns the rules for My FootDr clinic pages.
func DefaultRules() Rules {
	return Rules{
		Containers: []string{"main", "article", ".entry-content"},
		HeadingSelectors: []string{
			"main h1",
			"article h1",
			".entry-content h1",
			".site-main h1",
			"h1",
		},
		GreetingPrefixes: []string{"welcome to ", "welcome back to "},
		ExcludedTitles:   []string{"our clinics", "clinics"},
		BreadcrumbSelectors: []string{
			".breadcrumbs li:last-child",
			".breadcrumb li:last-child",
			`nav[aria-label*="breadcrumb"] li:last-child`,
		},
		TitleSeparators: []string{" - ", " | ", " – "},
		StreetWords: []string{
			"rd", "road", "st", "street", "ave", "avenue", "hwy", "highway",
			"ln", "lane", "ct", "court", "dr", "drive",
		},
		RegionAbbreviations: []string{"qld", "nsw", "vic", "sa", "wa", "tas", "nt", "act"},
		ServiceMarkers: []string{
			"assist with",
			"services include",
			"we can help with",
			"we offer the following services",
			"our services include",
		},
		GenericPhones:    []string{"1800366837"},
		MaxServiceLength: DefaultMaxServiceLength,
	}
}

// Override returns r with every non-empty list of o replacing the matching
// list of r.
func (r Rules) Override(o Rules) Rules {
	pick := func(base, override []string) []string {
		if len(override) > 0 {
			return override
		}
		return base
	}
	r.Containers = pick(r.Containers, o.Containers)
	r.HeadingSelectors = pick(r.HeadingSelectors, o.HeadingSelectors)
	r.GreetingPrefixes = pick(r.GreetingPrefixes, o.GreetingPrefixes)
	r.ExcludedTitles = pick(r.ExcludedTitles, o.ExcludedTitles)
	r.BreadcrumbSelectors = pick(r.BreadcrumbSelectors, o.BreadcrumbSelectors)
	r.TitleSeparators = pick(r.TitleSeparators, o.TitleSeparators)
	r.StreetWords = pick(r.StreetWords, o.StreetWords)
	r.RegionAbbreviations = pick(r.RegionAbbreviations, o.RegionAbbreviations)
	r.ServiceMarkers = pick(r.ServiceMarkers, o.ServiceMarkers)
	r.GenericPhones = pick(r.GenericPhones, o.GenericPhones)
	if o.MaxServiceLength > 0 {
		r.MaxServiceLength = o.MaxServiceLength
	}
	return r
}
