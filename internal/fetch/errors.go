package fetch

import "errors"

// Fetch errors.
//
// Design decision: Every failure the crawler sees wraps ErrRetriesExhausted,
// so callers can tell "the archive did not answer" from programming errors
// with one errors.Is check, and still reach the last cause underneath.
var (
	// ErrStatus is returned when the server answers with a non-2xx status.
	ErrStatus = errors.New("unexpected HTTP status")

	// ErrRetriesExhausted is returned when every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNotHTML is returned when a capture is not an HTML document.
	// It is not retried.
	ErrNotHTML = errors.New("response is not HTML")

	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected formats are "host:port" and "socks5://[user:pass@]host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port or socks5://host:port")
)
