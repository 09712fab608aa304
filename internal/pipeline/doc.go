// Package pipeline provides a framework for executing scan steps in sequence.
//
// A scan runs through CrawlStep, ValidateStep, ExportStep and PersistStep.
// Each step receives the current ScanReport and fills in its part.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running scans
//
// BatchProcessor crawls several start captures concurrently with errgroup;
// CrawlStep merges their records into one set.
package pipeline
