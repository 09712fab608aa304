package model

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Page represents one fetched capture.
// It holds what is worth persisting about a visit; the document itself is
// discarded once fields and links have been extracted.
type Page struct {
	// CaptureURL is the capture address as it was fetched.
	CaptureURL string `json:"capture_url"`

	// OriginalURL is the canonical original address of the capture.
	OriginalURL string `json:"original_url"`

	// Timestamp is the capture timestamp, 0 when absent.
	Timestamp int64 `json:"timestamp,omitempty"`

	// Title is the document title (see extract.Title).
	Title string `json:"title,omitempty"`

	// Hash is the SHA3-256 hash of the raw content.
	// Unchanged hashes across runs mean the capture served the same bytes.
	Hash string `json:"hash"`

	// Size is the number of bytes read.
	Size int `json:"size"`

	// Candidate is true when the original address passed the path-depth heuristic.
	Candidate bool `json:"candidate"`

	// Entity is true when the page was classified as a clinic page.
	Entity bool `json:"entity"`

	// FetchedAt is when the capture was fetched.
	FetchedAt time.Time `json:"fetched_at"`

	// Raw contains the response body. It is not serialized.
	Raw []byte `json:"-"`
}

// MaxPageSize is the default limit on the body size of a fetched page.
const MaxPageSize = 5 * 1024 * 1024 // 5 MB

// ComputeHash calculates and sets the hash and size of the page's raw content.
// This should be called after setting the Raw field.
func (p *Page) ComputeHash() {
	p.Size = len(p.Raw)
	if len(p.Raw) == 0 {
		p.Hash = ""
		return
	}

	hash := sha3.Sum256(p.Raw)
	p.Hash = hex.EncodeToString(hash[:])
}

// IsHTML reports whether a Content-Type value denotes an HTML document.
// An empty value is treated as HTML because archive captures frequently
// omit the header.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	mediaType = strings.TrimSpace(mediaType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
