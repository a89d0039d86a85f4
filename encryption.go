package bookexport

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// Font obfuscation algorithm URIs. Readers undo these themselves.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true, // IDPF font obfuscation
	"http://ns.adobe.com/pdf/enc#RC":     true, // Adobe font obfuscation
}

// Known DRM namespace prefixes found in KeyInfo child elements or algorithm URIs.
var drmSignatures = []string{
	"http://ns.adobe.com/adept",      // Adobe ADEPT
	"http://readium.org/2014/01/lcp", // Readium LCP
}

type xmlEncryption struct {
	XMLName       xml.Name           `xml:"encryption"`
	EncryptedData []xmlEncryptedData `xml:"EncryptedData"`
}

type xmlEncryptedData struct {
	EncryptionMethod xmlEncryptionMethod `xml:"EncryptionMethod"`
	KeyInfo          xmlKeyInfo          `xml:"KeyInfo"`
	CipherData       xmlCipherData       `xml:"CipherData"`
}

type xmlEncryptionMethod struct {
	Algorithm string `xml:"Algorithm,attr"`
}

type xmlKeyInfo struct {
	InnerXML string `xml:",innerxml"`
}

type xmlCipherData struct {
	Reference struct {
		URI string `xml:"URI,attr"`
	} `xml:"CipherReference"`
}

// inspectEncryption reports, as human-readable warnings, what a fetched
// META-INF/encryption.xml declares. The descriptor is copied into the output
// unchanged, so entries other than font obfuscation may make readers refuse
// the affected resources.
func inspectEncryption(data []byte) []string {
	data = stripBOM(data)

	var enc xmlEncryption
	if err := xml.Unmarshal(data, &enc); err != nil {
		return []string{fmt.Sprintf("encryption descriptor is not parseable: %v", err)}
	}

	var (
		fonts   int
		drm     int
		byAlgo  = make(map[string]int)
		samples = make(map[string]string)
	)
	for _, ed := range enc.EncryptedData {
		algo := strings.TrimSpace(ed.EncryptionMethod.Algorithm)
		switch {
		case fontObfuscationAlgorithms[algo]:
			fonts++
		case isDRMSignature(algo), isDRMSignature(ed.KeyInfo.InnerXML):
			drm++
		default:
			byAlgo[algo]++
			if uri := ed.CipherData.Reference.URI; uri != "" && samples[algo] == "" {
				samples[algo] = uri
			}
		}
	}

	var warnings []string
	if fonts > 0 {
		warnings = append(warnings, fmt.Sprintf("font obfuscation declared for %d resource(s)", fonts))
	}
	if drm > 0 {
		warnings = append(warnings, fmt.Sprintf("third-party DRM declared for %d resource(s)", drm))
	}

	algos := make([]string, 0, len(byAlgo))
	for a := range byAlgo {
		algos = append(algos, a)
	}
	sort.Strings(algos)
	for _, a := range algos {
		name := a
		if name == "" {
			name = "(unspecified)"
		}
		w := fmt.Sprintf("encryption algorithm %s declared for %d resource(s)", name, byAlgo[a])
		if s := samples[a]; s != "" {
			w += " (first: " + s + ")"
		}
		warnings = append(warnings, w)
	}
	return warnings
}

// isDRMSignature checks whether s contains any known DRM namespace or identifier.
func isDRMSignature(s string) bool {
	for _, sig := range drmSignatures {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}
