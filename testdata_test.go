package bookexport

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
)

// testContainerXML is a container descriptor pointing at OPS/content.opf.
const testContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// testContentOPF is a package document declaring one resource of each class.
const testContentOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>測試之書</dc:title>
    <dc:creator>Author One</dc:creator>
    <dc:language>zh-TW</dc:language>
    <dc:identifier id="uid">urn:isbn:9789860000000</dc:identifier>
  </metadata>
  <manifest>
    <item id="css" href="style/book.css" media-type="text/css"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="img" href="images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
  </spine>
</package>`

// call is one request observed by fakeTransport.
type call struct {
	URL    string
	Query  url.Values
	Header http.Header
}

// fakeTransport serves canned bodies keyed by URL without query. URLs with
// no entry fail with a 404 FetchError.
type fakeTransport struct {
	bodies map[string][]byte
	errs   map[string]error
	calls  []call
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
	}
}

func (f *fakeTransport) serve(rawURL string, body []byte) {
	f.bodies[rawURL] = body
}

func (f *fakeTransport) Get(_ context.Context, rawURL string, query url.Values, header http.Header) ([]byte, error) {
	f.calls = append(f.calls, call{URL: rawURL, Query: query, Header: header})
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	body, ok := f.bodies[rawURL]
	if !ok {
		return nil, &FetchError{URL: rawURL, StatusCode: http.StatusNotFound}
	}
	return body, nil
}

func (f *fakeTransport) requested(rawURL string) bool {
	for _, c := range f.calls {
		if c.URL == rawURL {
			return true
		}
	}
	return false
}

// recordingSink collects every status update.
type recordingSink struct {
	updates []StatusUpdate
}

func (s *recordingSink) Update(u StatusUpdate) {
	s.updates = append(s.updates, u)
}

func (s *recordingSink) last() StatusUpdate {
	if len(s.updates) == 0 {
		return StatusUpdate{}
	}
	return s.updates[len(s.updates)-1]
}

func (s *recordingSink) messages() []string {
	var out []string
	for _, u := range s.updates {
		if len(out) == 0 || out[len(out)-1] != u.Message {
			out = append(out, u.Message)
		}
	}
	return out
}

// fixedSession is a Session with static answers, for driving the
// orchestrator without a vendor bootstrap.
type fixedSession struct {
	base  string
	token string
}

func (s fixedSession) ResolveAbsolute(p string) string { return s.base + p }
func (s fixedSession) Classify(string) ResourceClass   { return ClassPassthrough }
func (s fixedSession) Query(ResourceClass) url.Values  { return nil }
func (s fixedSession) Header() http.Header             { return nil }
func (s fixedSession) KeyToken() string                { return s.token }

// fixedProtocol bootstraps a fixedSession without any request.
type fixedProtocol struct {
	source  Source
	session Session
}

func (p fixedProtocol) Source() Source { return p.source }

func (p fixedProtocol) Bootstrap(context.Context, Transport, Book, Stepper) (Session, error) {
	return p.session, nil
}

// readTestZip opens an archive produced by a ZipWriter and returns its
// entries in archive order with their contents.
func readTestZip(t *testing.T, data []byte) ([]*zip.File, map[string]string) {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("readTestZip: open reader: %v", err)
	}
	contents := make(map[string]string, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("readTestZip: open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("readTestZip: read %s: %v", f.Name, err)
		}
		contents[f.Name] = string(b)
	}
	return r.File, contents
}
