package bookexport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Readmoo endpoints.
const (
	readmooAPIBase    = "https://reader.readmoo.com"
	readmooViewerPath = "/_single-bundle/mooreader-js-viewer_all.min.js"
	readmooReferer    = "https://reader.readmoo.com/reader/index.html"
)

// readmooTokenPattern finds the bearer token literal embedded in the viewer
// bundle.
var readmooTokenPattern = regexp.MustCompile(`bearer.+return["'](.*?)["']`)

// Readmoo implements Protocol for the Readmoo web reader. The viewer script
// embeds an authorization token; the book's navigation endpoint, called with
// that token, returns the base path all content paths are relative to.
// Content is served unencrypted.
//
// The zero value targets the production endpoints.
type Readmoo struct {
	// APIBase overrides the reader host, e.g. for tests.
	APIBase string
}

// Source implements Protocol.
func (p *Readmoo) Source() Source { return SourceReadmoo }

func (p *Readmoo) apiBase() string {
	if p.APIBase != "" {
		return strings.TrimSuffix(p.APIBase, "/")
	}
	return readmooAPIBase
}

// Bootstrap implements Protocol.
func (p *Readmoo) Bootstrap(ctx context.Context, t Transport, book Book, steps Stepper) (Session, error) {
	s := &readmooSession{apiBase: p.apiBase()}

	err := steps.Step("Fetching authorization token", func() error {
		data, err := t.Get(ctx, s.apiBase+readmooViewerPath, nil, s.Header())
		if err != nil {
			return err
		}
		m := readmooTokenPattern.FindSubmatch(data)
		if m == nil || len(m[1]) == 0 {
			return fmt.Errorf("bookexport: no authorization token in viewer script: %w", ErrMalformedInput)
		}
		s.token = string(m[1])
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = steps.Step("Fetching base path", func() error {
		var nav struct {
			Base string `json:"base"`
		}
		header := s.Header()
		header.Set("Authorization", "bearer "+s.token)
		navURL := s.apiBase + "/api/book/" + url.PathEscape(book.ID) + "/nav"
		if err := getJSON(ctx, t, navURL, nil, header, &nav); err != nil {
			return err
		}
		if nav.Base == "" {
			return fmt.Errorf("bookexport: navigation of book %s has no base path: %w", book.ID, ErrMalformedInput)
		}
		s.basePath = nav.Base
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// readmooSession is the Session of a Readmoo export.
type readmooSession struct {
	apiBase  string
	token    string
	basePath string
}

// ResolveAbsolute joins the reader host, the book's base path and p.
func (s *readmooSession) ResolveAbsolute(p string) string {
	return s.apiBase + s.basePath + p
}

// Classify reports every resource as passthrough.
func (s *readmooSession) Classify(string) ResourceClass { return ClassPassthrough }

func (s *readmooSession) Query(ResourceClass) url.Values { return nil }

// Header returns the referer the reader expects on every request.
func (s *readmooSession) Header() http.Header {
	h := make(http.Header)
	h.Set("Referer", readmooReferer)
	return h
}

func (s *readmooSession) KeyToken() string { return s.token }
