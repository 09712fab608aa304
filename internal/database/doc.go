// Package database provides SQLite-based storage for clinicscan runs.
//
// This package implements the CrawlDB, which stores:
//   - Runs: one row per scan with its statistics and full JSON report
//   - Pages: every capture fetched during a run, with its content hash
//   - Clinics: the consolidated records of a run, one per dedup key
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
//
// SQLite serializes writers within one process; a file lock (gofrs/flock)
// next to the database keeps two scans from writing to it at once.
package database
