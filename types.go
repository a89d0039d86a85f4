package bookexport

import (
	"path"
	"strings"
)

// Source identifies the web reader a book was purchased from.
type Source string

const (
	// SourceReadmoo is the Readmoo web reader (reader.readmoo.com).
	SourceReadmoo Source = "readmoo"

	// SourceBooks is the Books.com.tw web reader (viewer-ebook.books.com.tw).
	SourceBooks Source = "books"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// Book describes a book found on a vendor's library page. The exporter only
// reads ID and Source; the remaining fields are informational.
type Book struct {
	// ID is the vendor's book identifier (e.g., "E050033363_reflowable_normal").
	ID string

	// Title is the display title from the library page.
	Title string

	// Source selects the vendor protocol.
	Source Source

	// Description is an optional blurb.
	Description string

	// CoverImageURL is the absolute URL of the cover thumbnail.
	CoverImageURL string
}

// ResourceClass determines how a resource is requested and post-processed.
type ResourceClass int

const (
	// ClassPassthrough resources are fetched and stored unchanged.
	ClassPassthrough ResourceClass = iota

	// ClassImageEncrypted resources are transformed server-side; the request
	// carries the session's checksum and download token.
	ClassImageEncrypted

	// ClassStreamEncrypted resources carry the download token and are
	// XOR-decoded with a key derived from their absolute URL.
	ClassStreamEncrypted
)

// String returns a short name for the class.
func (c ResourceClass) String() string {
	switch c {
	case ClassPassthrough:
		return "passthrough"
	case ClassImageEncrypted:
		return "image"
	case ClassStreamEncrypted:
		return "stream"
	default:
		return "unknown"
	}
}

// Extensions served without vendor encryption: style sheets and fonts.
var passthroughExtensions = map[string]bool{
	".css": true, ".ttc": true, ".otf": true, ".ttf": true,
	".eot": true, ".woff": true, ".woff2": true,
}

var imageExtensions = map[string]bool{
	".bmp": true, ".gif": true, ".ico": true, ".jpeg": true, ".jpg": true,
	".tiff": true, ".tif": true, ".svg": true, ".png": true, ".webp": true,
}

// ClassifyExtension maps a resource path to its class by file extension,
// case-insensitively. Paths with any other extension, or none, are
// StreamEncrypted.
func ClassifyExtension(p string) ResourceClass {
	ext := strings.ToLower(path.Ext(p))
	switch {
	case passthroughExtensions[ext]:
		return ClassPassthrough
	case imageExtensions[ext]:
		return ClassImageEncrypted
	default:
		return ClassStreamEncrypted
	}
}
