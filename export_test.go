package bookexport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

const testBase = "https://cdn.example/book/"

func newFixedExporter(ft *fakeTransport, sink StatusSink) *Exporter {
	return New(
		WithTransport(ft),
		WithStatusSink(sink),
		WithProtocol(fixedProtocol{source: SourceReadmoo, session: fixedSession{base: testBase}}),
	)
}

func serveTestBook(ft *fakeTransport) {
	ft.serve(testBase+"META-INF/container.xml", []byte(testContainerXML))
	ft.serve(testBase+"OPS/content.opf", []byte(testContentOPF))
	ft.serve(testBase+"OPS/style/book.css", []byte("p{}"))
	ft.serve(testBase+"OPS/text/ch1.xhtml", []byte("<html/>"))
	ft.serve(testBase+"OPS/images/cover.jpg", []byte{0xFF, 0xD8})
}

// assertMonotonic checks that neither counter ever decreases and completed
// never exceeds the total.
func assertMonotonic(t *testing.T, updates []StatusUpdate) {
	t.Helper()
	var prev StatusUpdate
	for i, u := range updates {
		if u.ItemsCount < prev.ItemsCount || u.ItemsCountCompleted < prev.ItemsCountCompleted {
			t.Fatalf("update %d: counters went from %d/%d to %d/%d", i,
				prev.ItemsCountCompleted, prev.ItemsCount, u.ItemsCountCompleted, u.ItemsCount)
		}
		if u.ItemsCountCompleted > u.ItemsCount {
			t.Fatalf("update %d: completed %d exceeds total %d", i, u.ItemsCountCompleted, u.ItemsCount)
		}
		prev = u
	}
}

func TestExport_UndefinedVendor(t *testing.T) {
	ft := newFakeTransport()
	sink := &recordingSink{}
	e := New(WithTransport(ft), WithStatusSink(sink))

	res, err := e.Export(context.Background(), Book{ID: "1", Source: "kobo"})
	if !errors.Is(err, ErrUndefinedVendor) {
		t.Fatalf("expected ErrUndefinedVendor, got: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if len(ft.calls) != 0 {
		t.Errorf("made %d requests before failing", len(ft.calls))
	}
	if len(sink.updates) != 0 {
		t.Errorf("emitted %d status updates", len(sink.updates))
	}
}

func TestExport_Passthrough(t *testing.T) {
	ft := newFakeTransport()
	serveTestBook(ft)
	sink := &recordingSink{}

	res, err := newFixedExporter(ft, sink).Export(context.Background(), Book{ID: "b1", Source: SourceReadmoo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPaths := []string{
		"META-INF/container.xml",
		"OPS/content.opf",
		"OPS/style/book.css",
		"OPS/text/ch1.xhtml",
		"OPS/images/cover.jpg",
	}
	if got := res.Files.Paths(); !slices.Equal(got, wantPaths) {
		t.Errorf("Paths() = %v, want %v", got, wantPaths)
	}
	if res.Files.Has(encryptionPath) {
		t.Error("store has an entry for the missing encryption descriptor")
	}
	if res.Skipped == nil {
		t.Error("expected the missing encryption descriptor in Skipped")
	} else if !errors.Is(res.Skipped, ErrTransport) {
		t.Errorf("Skipped = %v, want a transport error", res.Skipped)
	}
	if res.RootManifestPath != "OPS/content.opf" {
		t.Errorf("RootManifestPath = %q", res.RootManifestPath)
	}
	if res.Metadata.Title != "測試之書" {
		t.Errorf("Metadata.Title = %q", res.Metadata.Title)
	}
	if res.Progress != (Progress{Total: 6, Completed: 6}) {
		t.Errorf("Progress = %+v, want 6/6", res.Progress)
	}

	assertMonotonic(t, sink.updates)
	last := sink.last()
	if last.State != StateComplete {
		t.Errorf("final state = %v, want Complete", last.State)
	}
	if last.BookID != "b1" {
		t.Errorf("BookID = %q", last.BookID)
	}

	var states []State
	for _, u := range sink.updates {
		if len(states) == 0 || states[len(states)-1] != u.State {
			states = append(states, u.State)
		}
	}
	wantStates := []State{StateFetchingSession, StateFetchingContainer, StateFetchingManifest, StateFetchingResources, StateComplete}
	if !slices.Equal(states, wantStates) {
		t.Errorf("states = %v, want %v", states, wantStates)
	}

	if !slices.Contains(sink.messages(), "Fetching META-INF/encryption.xml... failed (ignorable)") {
		t.Errorf("messages = %v, want a tolerated failure message", sink.messages())
	}
}

func TestExport_FatalResource(t *testing.T) {
	ft := newFakeTransport()
	serveTestBook(ft)
	delete(ft.bodies, testBase+"OPS/text/ch1.xhtml")
	sink := &recordingSink{}

	res, err := newFixedExporter(ft, sink).Export(context.Background(), Book{ID: "b1", Source: SourceReadmoo})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got: %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.URL != testBase+"OPS/text/ch1.xhtml" {
		t.Errorf("error = %v, want the FetchError of ch1", err)
	}

	last := sink.last()
	if last.State != StateFailed {
		t.Errorf("final state = %v, want Failed", last.State)
	}
	if last.Message != "Fetching OPS/text/ch1.xhtml" {
		t.Errorf("final message = %q, want it to name the failing resource", last.Message)
	}
	if !res.Files.Has("OPS/style/book.css") {
		t.Error("resource before the failure is missing")
	}
	if res.Files.Has("OPS/text/ch1.xhtml") || res.Files.Has("OPS/images/cover.jpg") {
		t.Error("store has entries at or after the failing resource")
	}
	if ft.requested(testBase + "OPS/images/cover.jpg") {
		t.Error("export continued past the fatal failure")
	}
	assertMonotonic(t, sink.updates)
}

func TestExport_ContainerWithoutRootfile(t *testing.T) {
	ft := newFakeTransport()
	ft.serve(testBase+"META-INF/container.xml", []byte(`<container><rootfiles/></container>`))
	sink := &recordingSink{}

	_, err := newFixedExporter(ft, sink).Export(context.Background(), Book{ID: "b1", Source: SourceReadmoo})
	if !errors.Is(err, ErrManifestParse) {
		t.Fatalf("expected ErrManifestParse, got: %v", err)
	}
	if sink.last().State != StateFailed {
		t.Errorf("final state = %v, want Failed", sink.last().State)
	}
}

func TestBatchFetch_ToleratedAndFatal(t *testing.T) {
	ft := newFakeTransport()
	ft.serve(testBase+"a.css", []byte("a"))
	ft.serve(testBase+"d.css", []byte("d"))
	sink := &recordingSink{}

	r := New(WithTransport(ft), WithStatusSink(sink)).newRun(context.Background(), Book{ID: "b1"})
	r.session = fixedSession{base: testBase}

	err := r.batchFetch([]string{"a.css", "b.css", "c.css", "d.css"}, map[string]bool{"b.css": true})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got: %v", err)
	}

	if !r.store.Has("a.css") {
		t.Error("a.css missing")
	}
	for _, p := range []string{"b.css", "c.css", "d.css"} {
		if r.store.Has(p) {
			t.Errorf("store has an entry for %s", p)
		}
	}
	if ft.requested(testBase + "d.css") {
		t.Error("d.css was requested after the fatal failure")
	}
	if r.progress != (Progress{Total: 4, Completed: 2}) {
		t.Errorf("progress = %+v, want 2/4", r.progress)
	}

	var merr *multierror.Error
	if !errors.As(r.skipped, &merr) || len(merr.Errors) != 1 {
		t.Fatalf("skipped = %v, want one error", r.skipped)
	}

	wantMessages := []string{
		"",
		"Fetching a.css",
		"Fetching b.css",
		"Fetching b.css... failed (ignorable)",
		"Fetching c.css",
	}
	if got := sink.messages(); !slices.Equal(got, wantMessages) {
		t.Errorf("messages = %q, want %q", got, wantMessages)
	}
}

func TestBatchFetch_SkipsStoredPaths(t *testing.T) {
	ft := newFakeTransport()
	ft.serve(testBase+"a.css", []byte("a"))

	r := New(WithTransport(ft)).newRun(context.Background(), Book{ID: "b1"})
	r.session = fixedSession{base: testBase}

	for range 2 {
		if err := r.batchFetch([]string{"a.css"}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(ft.calls) != 1 {
		t.Errorf("made %d requests, want 1", len(ft.calls))
	}
	if r.progress != (Progress{Total: 2, Completed: 2}) {
		t.Errorf("progress = %+v, want 2/2", r.progress)
	}
}

func TestBatchFetch_DecodesStreamResources(t *testing.T) {
	const token = "stream-token"
	link := "https://streaming.example/V1.0/Streaming/book/E2685A/7408643/"
	plain := []byte("<html>第一章</html>")

	key, err := DeriveKey(link+"OPS/ch1.xhtml", token)
	if err != nil {
		t.Fatal(err)
	}
	ft := newFakeTransport()
	ft.serve(link+"OPS/ch1.xhtml", xorStream(key, append([]byte{0xEF, 0xBB, 0xBF}, plain...)))

	r := New(WithTransport(ft)).newRun(context.Background(), Book{ID: "b1"})
	r.session = &booksSession{downloadLink: link, downloadToken: token, checksum: checksumSeed}

	if err := r.batchFetch([]string{"OPS/ch1.xhtml"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := r.store.Get("OPS/ch1.xhtml")
	if !bytes.Equal(got, plain) {
		t.Errorf("stored %q, want %q", got, plain)
	}
	if q := ft.calls[0].Query; q.Get("DownloadToken") != token || q.Has("checksum") {
		t.Errorf("query = %v", q)
	}
}

func TestBatchFetch_ToleratesCanceledContextAsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ft := newFakeTransport()
	r := New(WithTransport(ft)).newRun(ctx, Book{ID: "b1"})
	r.session = fixedSession{base: testBase}

	err := r.batchFetch([]string{"a.css"}, map[string]bool{"a.css": true})
	if err == nil {
		t.Fatal("expected an error for a canceled export")
	}
	if r.skipped != nil {
		t.Errorf("skipped = %v, want nil", r.skipped)
	}
}

func TestExportArchive_Books(t *testing.T) {
	const (
		bookID = "E050033363_reflowable_normal"
		token  = "dl-token"
	)
	chapter := "<html><body><p>第一章</p></body></html>"
	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	files := map[string][]byte{
		"META-INF/container.xml": []byte(testContainerXML),
		"OPS/content.opf":        []byte(testContentOPF),
		"OPS/style/book.css":     []byte("p{margin:0}"),
		"OPS/text/ch1.xhtml":     append([]byte{0xEF, 0xBB, 0xBF}, chapter...),
		"OPS/images/cover.jpg":   cover,
	}
	const contentPrefix = "/V1.0/Streaming/book/E2685A/7408643/"

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == booksDownloadInfoPath {
			w.Write([]byte(`{"book_uni_id":"` + bookID + `","download_link":"` + srv.URL + contentPrefix +
				`","download_token":"` + token + `","size":1,"encrypt_type":"1"}`))
			return
		}
		p, ok := strings.CutPrefix(r.URL.Path, contentPrefix)
		body, found := files[p]
		if !ok || !found {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		switch ClassifyExtension(p) {
		case ClassPassthrough:
			if len(q) != 0 {
				t.Errorf("%s: unexpected query %v", p, q)
			}
		case ClassImageEncrypted:
			if q.Get("DownloadToken") != token || len(q.Get("checksum")) != len(checksumSeed) {
				t.Errorf("%s: query %v", p, q)
			}
		case ClassStreamEncrypted:
			if q.Get("DownloadToken") != token || q.Has("checksum") {
				t.Errorf("%s: query %v", p, q)
			}
			key, err := DeriveKey(srv.URL+contentPrefix+p, token)
			if err != nil {
				t.Errorf("%s: %v", p, err)
			}
			body = xorStream(key, body)
		}
		w.Write(body)
	}))
	defer srv.Close()

	e := New(WithProtocol(&Books{
		APIBase: srv.URL,
		Now:     func() time.Time { return time.Unix(1700000000, 0) },
	}))

	var buf bytes.Buffer
	res, err := e.ExportArchive(context.Background(), Book{ID: bookID, Source: SourceBooks}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Progress != (Progress{Total: 7, Completed: 7}) {
		t.Errorf("Progress = %+v, want 7/7", res.Progress)
	}

	entries, contents := readTestZip(t, buf.Bytes())
	if entries[0].Name != "mimetype" {
		t.Errorf("first entry = %q, want mimetype", entries[0].Name)
	}
	if got := contents["OPS/text/ch1.xhtml"]; got != chapter {
		t.Errorf("chapter = %q, want %q", got, chapter)
	}
	if got := contents["OPS/images/cover.jpg"]; got != string(cover) {
		t.Errorf("cover = %x, want %x", got, cover)
	}
	if got := contents["META-INF/container.xml"]; got != testContainerXML {
		t.Errorf("container.xml not decoded: %q", got)
	}
	if _, ok := contents[encryptionPath]; ok {
		t.Error("archive has the missing encryption descriptor")
	}
}

func TestExport_ReadmooWarnings(t *testing.T) {
	const apiBase = "https://reader.example"
	ft := newFakeTransport()
	ft.serve(apiBase+readmooViewerPath, []byte(testViewerScript))
	ft.serve(apiBase+"/api/book/210097/nav", []byte(`{"base":"/ebook/210097/"}`))
	base := apiBase + "/ebook/210097/"
	ft.serve(base+"META-INF/container.xml", []byte(testContainerXML))
	ft.serve(base+"META-INF/encryption.xml", []byte(`<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container"
  xmlns:enc="http://www.w3.org/2001/04/xmlenc#">
  <enc:EncryptedData>
    <enc:EncryptionMethod Algorithm="http://www.idpf.org/2008/embedding"/>
    <enc:CipherData><enc:CipherReference URI="OPS/fonts/a.otf"/></enc:CipherData>
  </enc:EncryptedData>
</encryption>`))
	ft.serve(base+"OPS/content.opf", []byte(testContentOPF))
	ft.serve(base+"OPS/style/book.css", []byte("p{}"))
	ft.serve(base+"OPS/text/ch1.xhtml", []byte("<html/>"))
	ft.serve(base+"OPS/images/cover.jpg", []byte{0xFF})

	e := New(WithTransport(ft), WithProtocol(&Readmoo{APIBase: apiBase}))
	res, err := e.Export(context.Background(), Book{ID: "210097", Source: SourceReadmoo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped != nil {
		t.Errorf("Skipped = %v, want nil", res.Skipped)
	}
	if !res.Files.Has(encryptionPath) {
		t.Error("encryption descriptor missing from the store")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "font obfuscation") {
		t.Errorf("Warnings = %v, want one font obfuscation warning", res.Warnings)
	}
	for _, c := range ft.calls {
		if c.Header.Get("Referer") != readmooReferer {
			t.Errorf("%s: missing referer", c.URL)
		}
	}
}
