// Package capture resolves web-archive capture addresses.
//
// A capture address embeds a snapshot timestamp and the address of the
// archived page:
//
//	https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/
//
// Two address spaces are involved: the capture address itself and the
// "original" site address embedded in it. Both are compared through their
// canonical forms (see Canonicalize), which makes the crawler's visited-set
// and discovered-address sets insensitive to case, query strings, fragments
// and trailing slashes.
//
// Nothing in this package performs I/O. Malformed addresses never produce an
// error; the fields that cannot be derived are simply absent.
package capture
