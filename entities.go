package bookexport

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// namedEntityPattern matches a named character reference such as "&nbsp;".
var namedEntityPattern = regexp.MustCompile(`&([A-Za-z][A-Za-z0-9]*);`)

// xmlEntities are the predefined XML entities, which encoding/xml resolves itself.
var xmlEntities = map[string]bool{"amp": true, "lt": true, "gt": true, "quot": true, "apos": true}

// preprocessHTMLEntities replaces HTML named entities with numeric character
// references so that encoding/xml can parse vendor package documents, which
// often carry entities such as &nbsp; or &hellip;. Names are looked up
// exactly first and then lowercased; unknown names are left untouched.
func preprocessHTMLEntities(data []byte) []byte {
	return namedEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[1 : len(match)-1])
		if xmlEntities[name] {
			return match
		}

		text, ok := unescapeEntity(name)
		if !ok {
			if text, ok = unescapeEntity(strings.ToLower(name)); !ok {
				return match
			}
		}

		var out []byte
		for _, r := range text {
			out = fmt.Appendf(out, "&#%d;", r)
		}
		return out
	})
}

// unescapeEntity resolves "&name;" as a whole. The HTML unescaper also accepts
// legacy prefixes such as "&not" inside "&notin2;"; those partial matches
// leave trailing characters behind and are rejected here, since a complete
// reference decodes to at most two runes.
func unescapeEntity(name string) (string, bool) {
	ref := "&" + name + ";"
	text := html.UnescapeString(ref)
	if text == ref || utf8.RuneCountInString(text) > 2 {
		return "", false
	}
	return text, true
}
