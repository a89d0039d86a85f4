package bookexport

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
)

// Well-known paths inside an ePub container.
const (
	mimetypePath   = "mimetype"
	containerPath  = "META-INF/container.xml"
	encryptionPath = "META-INF/encryption.xml"
)

// epubMimetype is the required content of the "mimetype" entry.
const epubMimetype = "application/epub+zip"

// ArchiveWriter turns the fetched resources into a single packaged blob.
type ArchiveWriter interface {
	WriteArchive(w io.Writer, files map[string][]byte) error
}

// ZipWriter writes resources as an ePub ZIP container: an uncompressed
// "mimetype" entry first, followed by every other entry deflated in lexical
// path order.
type ZipWriter struct{}

// WriteArchive implements ArchiveWriter. A "mimetype" entry is synthesised
// when files does not contain one. Paths that would escape the archive root
// are rejected with ErrMalformedInput.
func (ZipWriter) WriteArchive(w io.Writer, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for name := range files {
		if name == mimetypePath {
			continue
		}
		if !isSafePath(name) {
			return fmt.Errorf("bookexport: unsafe archive entry %q: %w", name, ErrMalformedInput)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)

	mt, ok := files[mimetypePath]
	if !ok {
		mt = []byte(epubMimetype)
	}
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: mimetypePath, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("bookexport: create mimetype entry: %w", err)
	}
	if _, err := fw.Write(mt); err != nil {
		return fmt.Errorf("bookexport: write mimetype entry: %w", err)
	}

	for _, name := range names {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("bookexport: create zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(files[name]); err != nil {
			return fmt.Errorf("bookexport: write zip entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("bookexport: close zip: %w", err)
	}
	return nil
}

// resolveRelativePath resolves href relative to the directory of basePath.
// Both are container-internal paths (forward-slash separated); href keeps its
// percent-encoding because vendors address resources by the encoded form.
// A fragment is dropped. Absolute, remote, or root-escaping hrefs resolve to
// the empty string.
func resolveRelativePath(basePath, href string) string {
	href = strings.TrimSpace(hrefWithoutFragment(href))
	if href == "" || strings.HasPrefix(href, "/") {
		return ""
	}
	if u, err := url.Parse(href); err == nil && u.Scheme != "" {
		return ""
	}
	cleaned := path.Clean(path.Join(path.Dir(basePath), href))
	if !isSafePath(cleaned) {
		return ""
	}
	return cleaned
}

// hrefWithoutFragment strips a trailing "#fragment" from href.
func hrefWithoutFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}

// isSafePath checks whether p is a container-internal path that does not
// escape the archive root via path traversal (e.g., "../../../etc/passwd").
func isSafePath(p string) bool {
	if p == "" {
		return false
	}
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
