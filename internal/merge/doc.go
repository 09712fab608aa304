// Package merge consolidates duplicate observations of the same clinic.
//
// The same clinic is usually reachable through several captures: different
// timestamps, http and https variants, region and search pages linking the
// same detail page. Each observation becomes a model.Record; the Consolidator
// keeps, per dedup key, the record with the highest completeness score and
// falls back to capture recency on ties.
//
// Design decision: The reduction is a pure "best-so-far" comparison
// (see Better), so it is commutative and associative. Crawls can therefore
// run in parallel and be merged afterwards with the same outcome as a single
// sequential crawl over the same observations.
package merge
