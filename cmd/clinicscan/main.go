// Package main provides the entry point for the clinicscan CLI.
//
// clinicscan walks Wayback Machine captures of a clinic directory, extracts
// one record per clinic and writes them as a report and CSV files.
//
// Usage:
//
//	clinicscan scan [capture-url...]
//	clinicscan fetch <capture-url>
//	clinicscan history
//
// See --help for all available options.
package main

// main is the entry point for clinicscan.
func main() {
	Execute()
}
