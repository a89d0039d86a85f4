package bookexport

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// containerXML models the META-INF/container.xml file used to locate the OPF.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

// rootFile represents a single <rootfile> element inside container.xml.
type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// RootManifestPath returns the full-path of the first rootfile declared in a
// container descriptor. A leading BOM is ignored.
//
// It returns a wrapped ErrManifestParse when the descriptor cannot be parsed,
// declares no rootfile, or the first rootfile has an empty full-path.
func RootManifestPath(container []byte) (string, error) {
	data := stripBOM(container)

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("bookexport: parse container.xml: %v: %w", err, ErrManifestParse)
	}

	if len(c.RootFiles) == 0 {
		return "", fmt.Errorf("bookexport: container.xml has no rootfile entries: %w", ErrManifestParse)
	}

	fullPath := strings.TrimSpace(c.RootFiles[0].FullPath)
	if fullPath == "" {
		return "", fmt.Errorf("bookexport: container.xml rootfile has empty full-path: %w", ErrManifestParse)
	}
	if !isSafePath(fullPath) {
		return "", fmt.Errorf("bookexport: container.xml rootfile %q escapes the container: %w", fullPath, ErrManifestParse)
	}

	return fullPath, nil
}
