package capture

import (
	"net/url"
	"strings"
)

// Scope decides which captures belong to the crawl.
// A capture is in scope when its embedded original address, with http
// forced to https, starts with Prefix.
type Scope struct {
	// Prefix is the original-site prefix, e.g. "https://site.example/our-clinics/".
	Prefix string

	// Section is the first path segment of Prefix ("our-clinics").
	// Entity candidates live at least two levels below it.
	Section string

	resolver *Resolver
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithResolver sets the resolver used to parse capture addresses.
func WithResolver(r *Resolver) ScopeOption {
	return func(s *Scope) {
		s.resolver = r
	}
}

// WithSection overrides the section name derived from the prefix.
func WithSection(section string) ScopeOption {
	return func(s *Scope) {
		s.Section = section
	}
}

// NewScope creates a Scope for the given original-site prefix.
func NewScope(prefix string, opts ...ScopeOption) *Scope {
	prefix = ForceHTTPS(strings.TrimSpace(prefix))
	s := &Scope{
		Prefix:   prefix,
		Section:  firstSegment(prefix),
		resolver: defaultResolver,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolver returns the resolver the scope parses captures with.
func (s *Scope) Resolver() *Resolver {
	return s.resolver
}

// Parse parses a capture address with the scope's resolver.
func (s *Scope) Parse(addr string) Capture {
	return s.resolver.Parse(addr)
}

// InScope reports whether a capture address is eligible for traversal.
func (s *Scope) InScope(addr string) bool {
	c := s.resolver.Parse(addr)
	if !c.HasOriginal {
		return false
	}
	return s.originalInScope(c.Original)
}

func (s *Scope) originalInScope(original string) bool {
	return strings.HasPrefix(ForceHTTPS(original), s.Prefix)
}

// IsEntityCandidate reports whether an original address looks like an entity
// detail page: its canonical path starts with the section and has at least
// three segments, e.g. /our-clinics/<region>/<clinic>.
func (s *Scope) IsEntityCandidate(original string) bool {
	segments := pathSegments(CanonicalOriginal(original))
	if len(segments) < 3 {
		return false
	}
	return segments[0] == s.Section
}

// firstSegment returns the first non-empty path segment of an address.
func firstSegment(addr string) string {
	segments := pathSegments(addr)
	if len(segments) == 0 {
		return ""
	}
	return segments[0]
}

// pathSegments splits the path of an address into non-empty segments.
func pathSegments(addr string) []string {
	path := addr
	if u, err := url.Parse(addr); err == nil {
		path = u.Path
	}
	segments := make([]string, 0, 4)
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}
