// Package model defines the core data structures used throughout clinicscan.
//
// This package contains the following main types:
//   - Record: A clinic record extracted from one archived page
//   - DedupKey: The normalized (name, address) pair identifying a clinic
//   - Page: Metadata about one fetched capture
//   - CrawlResult: The outcome of one traversal
//   - ScanReport: One or more crawls merged together
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, merge, report and database packages all use these
// types.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
