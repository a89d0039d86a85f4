package bookexport

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the bookexport package.
var (
	// ErrMalformedInput indicates a URL, path, or vendor response could not be
	// canonicalised (for example a resource URL with too few path segments).
	ErrMalformedInput = errors.New("bookexport: malformed input")

	// ErrManifestParse indicates the container or package descriptor lacks the
	// structure needed to discover the book's resources.
	ErrManifestParse = errors.New("bookexport: manifest parse error")

	// ErrTransport indicates a network or HTTP failure while fetching a resource.
	ErrTransport = errors.New("bookexport: transport error")

	// ErrUndefinedVendor indicates a book's source matches no known vendor protocol.
	ErrUndefinedVendor = errors.New("bookexport: undefined vendor")
)

// FetchError describes a failed fetch. It matches ErrTransport with errors.Is.
type FetchError struct {
	// URL is the absolute URL that was requested, without query parameters.
	URL string

	// StatusCode is the HTTP status code, or 0 when no response was received.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bookexport: fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("bookexport: fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *FetchError) Is(target error) bool { return target == ErrTransport }
