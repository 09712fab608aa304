package capture

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// DefaultCollection is the path segment the Wayback Machine places in
// front of the capture timestamp.
const DefaultCollection = "web"

// Capture is a parsed capture address.
// The zero values of Timestamp and Original are meaningful only when the
// matching Has* flag is set.
type Capture struct {
	// Raw is the address as it was given.
	Raw string

	// Timestamp is the capture time as the digit run of the marker
	// segment, e.g. 20250708180027.
	Timestamp int64

	// HasTimestamp reports whether the marker started with digits.
	HasTimestamp bool

	// Original is the embedded original-site address, including its scheme.
	Original string

	// HasOriginal reports whether the address matched the capture grammar.
	HasOriginal bool
}

// Priority returns the frontier priority of the capture.
// More recent captures have a lower value so they sort first.
// A missing timestamp is treated as 0.
func (c Capture) Priority() int64 {
	if !c.HasTimestamp {
		return 0
	}
	return -c.Timestamp
}

// Resolver parses capture addresses of one archive layout:
//
//	scheme://archive-host/<collection>/<marker>/<original>
//
// The marker is a timestamp optionally followed by a render flag such as
// "im_" or "id_". The original address keeps its own scheme.
type Resolver struct {
	collection string
	pattern    *regexp.Regexp
}

// originalSchemeRegex matches the start of an embedded original address.
// The archive sometimes collapses "https://" to "https:/" in paths.
var originalSchemeRegex = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9+.\-]*):/+`)

// NewResolver creates a Resolver for the given collection segment.
// An empty collection means the marker directly follows the host.
func NewResolver(collection string) *Resolver {
	expr := `^(?i:https?)://[^/?#]+/`
	if collection != "" {
		expr += regexp.QuoteMeta(collection) + `/`
	}
	expr += `([^/]+)/(.+)$`
	return &Resolver{
		collection: collection,
		pattern:    regexp.MustCompile(expr),
	}
}

// Collection returns the collection segment the resolver expects.
func (r *Resolver) Collection() string {
	return r.collection
}

// Parse parses a capture address.
// It never fails: fields that cannot be derived are left absent.
func (r *Resolver) Parse(raw string) Capture {
	c := Capture{Raw: raw}

	m := r.pattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return c
	}

	if ts, ok := parseTimestamp(m[1]); ok {
		c.Timestamp = ts
		c.HasTimestamp = true
	}

	if original, ok := embeddedOriginal(m[2]); ok {
		c.Original = original
		c.HasOriginal = true
	}
	return c
}

// parseTimestamp returns the leading digit run of a marker segment.
func parseTimestamp(marker string) (int64, bool) {
	end := 0
	for end < len(marker) && marker[end] >= '0' && marker[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(marker[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

// embeddedOriginal validates the remainder of a capture path as an absolute
// address and repairs a collapsed "scheme:/" separator.
func embeddedOriginal(rest string) (string, bool) {
	loc := originalSchemeRegex.FindStringSubmatchIndex(rest)
	if loc == nil {
		return "", false
	}
	scheme := rest[loc[2]:loc[3]]
	tail := rest[loc[1]:]
	if tail == "" {
		return "", false
	}
	return scheme + "://" + tail, true
}

var defaultResolver = NewResolver(DefaultCollection)

// Parse parses a Wayback Machine capture address.
func Parse(raw string) Capture {
	return defaultResolver.Parse(raw)
}

// Canonicalize returns the canonical form of an address: scheme and host
// lower-cased, query and fragment dropped, trailing path separators removed
// (an empty path becomes "/").
// It applies to capture and original addresses alike and is idempotent.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return canonicalizeString(raw)
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// canonicalizeString is the fallback for addresses net/url rejects.
func canonicalizeString(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}

	prefix := ""
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		host, path, _ := strings.Cut(rest, "/")
		prefix = strings.ToLower(scheme) + "://" + strings.ToLower(host)
		raw = "/" + path
	}

	path := strings.TrimRight(raw, "/")
	if path == "" {
		path = "/"
	}
	return prefix + path
}

// ForceHTTPS rewrites an http address to https.
// Other schemes are returned unchanged.
func ForceHTTPS(addr string) string {
	if len(addr) >= len("http://") && strings.EqualFold(addr[:len("http://")], "http://") {
		return "https://" + addr[len("http://"):]
	}
	return addr
}

// CanonicalOriginal returns the canonical form of an original-site address.
// http and https variants of the same page compare equal.
func CanonicalOriginal(original string) string {
	return Canonicalize(ForceHTTPS(strings.TrimSpace(original)))
}

// Equivalent reports whether two addresses share a canonical form.
func Equivalent(a, b string) bool {
	return Canonicalize(a) == Canonicalize(b)
}

// Resolve resolves a link target found on the page at base.
// The fragment is dropped. It returns false for targets that do not lead
// to a document.
func Resolve(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), true
}
