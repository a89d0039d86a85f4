package bookexport

import (
	"sort"
	"strconv"
	"strings"
)

// Metadata is the descriptive information read from a fetched package
// document. It is informational only; the export never depends on it.
type Metadata struct {
	// Version is the package version attribute ("2.0" when absent).
	Version string

	// Title is the primary dc:title, honouring ePub 3 display-seq ordering.
	Title string

	// Authors lists dc:creator names in document order.
	Authors []string

	// Language is the first dc:language value.
	Language string

	// Identifier is the dc:identifier referenced by the package's
	// unique-identifier attribute, or the first identifier.
	Identifier string

	// Publisher is the first dc:publisher value.
	Publisher string
}

// extractMetadata converts the raw OPF metadata into Metadata.
func extractMetadata(opf *opfPackage) Metadata {
	md := Metadata{Version: opf.Version}
	om := &opf.Metadata

	if titles := orderedTitles(om.Titles, buildRefinesMap(om.Metas)); len(titles) > 0 {
		md.Title = titles[0]
	}

	for _, c := range om.Creators {
		if v := strings.TrimSpace(c.Value); v != "" {
			md.Authors = append(md.Authors, v)
		}
	}

	md.Language = firstValue(om.Languages)
	md.Publisher = firstValue(om.Publishers)

	for _, id := range om.Identifiers {
		v := strings.TrimSpace(id.Value)
		if v == "" {
			continue
		}
		if md.Identifier == "" {
			md.Identifier = v
		}
		if opf.UniqueIdentifier != "" && id.ID == opf.UniqueIdentifier {
			md.Identifier = v
			break
		}
	}

	return md
}

// firstValue returns the first non-empty trimmed element value.
func firstValue(elems []opfDCElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// buildRefinesMap builds a map from element ID (without "#") to the list of
// <meta refines="#id" ...> elements that refine it.
func buildRefinesMap(metas []opfMeta) map[string][]opfMeta {
	m := make(map[string][]opfMeta)
	for _, meta := range metas {
		ref := meta.Refines
		if !strings.HasPrefix(ref, "#") {
			continue
		}
		m[ref[1:]] = append(m[ref[1:]], meta)
	}
	return m
}

// findRefine looks up a single refining property value for the given element ID.
func findRefine(refinesMap map[string][]opfMeta, id, property string) (string, bool) {
	for _, m := range refinesMap[id] {
		if m.Property == property {
			if v := strings.TrimSpace(m.Value); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// orderedTitles returns non-empty titles, sorted by display-seq when any
// title carries one. Titles without a sequence keep document order after the
// sequenced ones.
func orderedTitles(titles []opfDCElement, refinesMap map[string][]opfMeta) []string {
	type titleEntry struct {
		value string
		seq   int
	}

	entries := make([]titleEntry, 0, len(titles))
	for _, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		e := titleEntry{value: v}
		if t.ID != "" {
			if s, ok := findRefine(refinesMap, t.ID, "display-seq"); ok {
				if n, err := strconv.Atoi(s); err == nil && n > 0 {
					e.seq = n
				}
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].seq, entries[j].seq
		switch {
		case si == 0:
			return false
		case sj == 0:
			return true
		default:
			return si < sj
		}
	})

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}
