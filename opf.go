package bookexport

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"golang.org/x/net/html/charset"
)

// opfPackage represents the root <package> element of an OPF file.
type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
}

// opfMetadata holds the raw metadata elements from the OPF file.
type opfMetadata struct {
	Titles      []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Languages   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publishers  []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Metas       []opfMeta      `xml:"meta"`
}

// opfDCElement holds a Dublin Core element with optional OPF attributes.
type opfDCElement struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	FileAs string `xml:"file-as,attr"`
	Role   string `xml:"role,attr"`
	Scheme string `xml:"scheme,attr"`
}

// opfMeta represents a <meta> element in the OPF metadata.
// ePub 2: <meta name="..." content="..."/>
// ePub 3: <meta property="..." refines="...">value</meta>
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Value    string `xml:",chardata"`
}

// opfManifest wraps the <manifest> element.
type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

// opfManifestItem represents a single <item> in the manifest.
type opfManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

// parseOPF parses the OPF file content and returns the parsed package structure.
// Vendor package documents are not always well-formed: bare ampersands and
// unknown entities are kept as text, and legacy encoding labels are decoded.
func parseOPF(data []byte) (*opfPackage, error) {
	data = preprocessHTMLEntities(data)
	data = stripBOM(data)

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	var pkg opfPackage
	if err := dec.Decode(&pkg); err != nil {
		return nil, fmt.Errorf("bookexport: parse OPF: %v: %w", err, ErrManifestParse)
	}

	if pkg.Version == "" {
		pkg.Version = "2.0"
	}

	return &pkg, nil
}

// ResourcePaths lists every manifest item of the package document at
// rootManifestPath, resolved against the package document's directory, in
// document order. For a manifest at "OPS/content.opf", href="text/ch1.xhtml"
// resolves to "OPS/text/ch1.xhtml".
//
// Items whose href is absolute, remote, or escapes the container root are
// skipped, as are repeated paths. An unparsable manifest yields a wrapped
// ErrManifestParse.
func ResourcePaths(rootManifestPath string, manifest []byte) ([]string, error) {
	pkg, err := parseOPF(manifest)
	if err != nil {
		return nil, err
	}
	return manifestPaths(rootManifestPath, pkg.Manifest), nil
}

// manifestPaths resolves and de-duplicates the hrefs of a parsed manifest.
func manifestPaths(rootManifestPath string, manifest opfManifest) []string {
	seen := make(map[string]bool, len(manifest.Items))
	paths := make([]string, 0, len(manifest.Items))
	for _, item := range manifest.Items {
		p := resolveRelativePath(rootManifestPath, item.Href)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}
	return paths
}
