// Package crawler walks web archive captures under a scope prefix.
//
// # Architecture
//
// The crawler package is designed around the Spider type, which coordinates
// the traversal. Each Crawl call keeps a priority frontier of capture
// addresses, a visited set of canonical capture addresses and a
// merge.Consolidator holding the best record per clinic.
//
// Per capture the spider:
//  1. pops the most recent capture from the frontier
//  2. skips it if its canonical form was already visited, then marks it
//  3. skips it if its original address is outside the scope
//  4. records the original address, and whether it looks like a clinic page
//  5. stops the whole crawl if the page budget is used up
//  6. fetches the document; a failure skips the capture
//  7. extracts a record and offers it to the consolidator
//  8. queues every in-scope link not yet visited or queued
//
// Design decision: The frontier is ordered by capture timestamp, newest
// first, rather than by discovery order. The newest capture of a page is
// the one most likely to carry current clinic details, and an older capture
// of the same page only has to beat it on completeness.
//
// # Concurrency
//
// With WithConcurrency(n) n workers claim captures from the shared frontier.
// Claiming (visited check and mark) happens under one lock, so every
// canonical capture is still fetched at most once. Recency ordering becomes
// a preference: captures in flight may finish out of order.
//
// # Usage
//
//	client, _ := fetch.NewClient()
//	scope := capture.NewScope("https://www.myfootdr.com.au/our-clinics/")
//	spider := crawler.NewSpider(client, scope, crawler.WithMaxPages(500))
//	result, err := spider.Crawl(ctx, "https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/")
package crawler
