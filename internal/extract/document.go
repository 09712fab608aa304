package extract

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a parsed HTML document.
//
// Design decision: We select with goquery (CSS selectors, scoped to
// containers) but walk text nodes with golang.org/x/net/html directly.
// Selectors cover "the first h1 under main"; the marker-phrase rule needs
// "the next list after this text node", which is a document-order walk that
// selectors cannot express.
type Document struct {
	doc *goquery.Document
}

// Parse parses an HTML document.
// Malformed markup is repaired the way browsers do; an error is returned
// only when reading fails.
func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Document{doc: doc}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Links returns the href of every anchor in document order.
func (d *Document) Links() []string {
	links := make([]string, 0)
	d.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			links = append(links, href)
		}
	})
	return links
}

// Title returns the document title: the <title> element, falling back to the
// first h1. It returns "" when neither has text.
func (d *Document) Title() string {
	if title := CollapsedText(d.doc.Find("title").First()); title != "" {
		return title
	}
	return CollapsedText(d.doc.Find("h1").First())
}

// find runs a selector against the whole document.
func (d *Document) find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// skippedTextParents hold text that is never rendered as content.
var skippedTextParents = map[string]bool{
	"script":   true,
	"style":    true,
	"template": true,
	"noscript": true,
}

// CollapsedText returns the rendered text of a selection: all text nodes
// joined with spaces, with runs of whitespace collapsed and the ends trimmed.
func CollapsedText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		parts = appendText(parts, n)
	}
	return NormalizeWhitespace(strings.Join(parts, " "))
}

func appendText(parts []string, n *html.Node) []string {
	switch n.Type {
	case html.TextNode:
		return append(parts, n.Data)
	case html.ElementNode:
		if skippedTextParents[n.Data] {
			return parts
		}
	case html.CommentNode:
		return parts
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		parts = appendText(parts, c)
	}
	return parts
}

// NormalizeWhitespace collapses runs of whitespace to one space and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// textNodes returns the content text nodes below n in document order.
func textNodes(n *html.Node) []*html.Node {
	var nodes []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				nodes = append(nodes, c)
			case html.ElementNode:
				if !skippedTextParents[c.Data] {
					walk(c)
				}
			}
		}
	}
	walk(n)
	return nodes
}

// nextInDocument returns the node following n in document order.
func nextInDocument(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

// findNext returns the first element with the given tag after n in document
// order, or nil.
func findNext(n *html.Node, tag string) *html.Node {
	for cur := nextInDocument(n); cur != nil; cur = nextInDocument(cur) {
		if cur.Type == html.ElementNode && cur.Data == tag {
			return cur
		}
	}
	return nil
}
