package crawler

import "errors"

// ErrInvalidStart is returned when the start address is not an absolute
// http or https address.
var ErrInvalidStart = errors.New("invalid start address")
