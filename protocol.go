package bookexport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Protocol is the vendor-specific half of an export: it acquires the session
// whose capabilities drive the vendor-neutral fetch loop.
type Protocol interface {
	// Source returns the book source this protocol serves.
	Source() Source

	// Bootstrap performs the vendor's token exchange for book. Each network
	// exchange should be wrapped in steps.Step so it is accounted as one
	// progress item.
	Bootstrap(ctx context.Context, t Transport, book Book, steps Stepper) (Session, error)
}

// Session is the credential state of one export. It is created by
// Protocol.Bootstrap and discarded when the export ends.
type Session interface {
	// ResolveAbsolute returns the absolute URL of a container-internal path.
	ResolveAbsolute(p string) string

	// Classify returns how p must be requested and post-processed.
	Classify(p string) ResourceClass

	// Query returns the query parameters for fetching a resource of class c.
	Query(c ResourceClass) url.Values

	// Header returns headers sent with every resource fetch.
	Header() http.Header

	// KeyToken returns the token used for keystream derivation.
	KeyToken() string
}

// Stepper accounts a bootstrap exchange as one progress item, announcing
// message before fn runs.
type Stepper interface {
	Step(message string, fn func() error) error
}

// defaultProtocols returns the built-in vendor protocols keyed by source.
func defaultProtocols() map[Source]Protocol {
	return map[Source]Protocol{
		SourceReadmoo: &Readmoo{},
		SourceBooks:   &Books{},
	}
}

// getJSON fetches rawURL and decodes the JSON body into v.
func getJSON(ctx context.Context, t Transport, rawURL string, query url.Values, header http.Header, v any) error {
	data, err := t.Get(ctx, rawURL, query, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(stripBOM(data), v); err != nil {
		return fmt.Errorf("bookexport: decode response of %s: %v: %w", rawURL, err, ErrMalformedInput)
	}
	return nil
}
