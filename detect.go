package bookexport

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// booksLibraryHost serves the Books.com.tw library page.
const booksLibraryHost = "viewer-ebook.books.com.tw"

// IsExportable reports whether pageURL is a library page DetectBooks can
// read.
func IsExportable(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), booksLibraryHost)
}

// DetectBooks lists the books on a saved Books.com.tw library page. Every
// <li> under the element with id "list" that holds an "h3 > a" link with a
// data-href attribute yields one Book; other items are ignored. A page
// without a list yields no books.
func DetectBooks(r io.Reader) ([]Book, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("bookexport: parse library page: %v: %w", err, ErrMalformedInput)
	}

	list := findElementByID(doc, "list")
	if list == nil {
		return nil, nil
	}

	var books []Book
	for _, li := range findElements(list, "li") {
		a := findHeadingLink(li)
		if a == nil {
			continue
		}
		href, ok := getAttr(a, "data-href")
		if !ok {
			continue
		}

		title, ok := getAttr(a, "data-o_title")
		if !ok {
			title = strings.TrimSpace(nodeTextContent(a))
		}

		var cover string
		for _, img := range findElements(li, "img") {
			if hasClass(img, "img") {
				cover, _ = getAttr(img, "src")
				break
			}
		}

		books = append(books, Book{
			ID:            bookIDFromHref(href),
			Title:         title,
			Source:        SourceBooks,
			CoverImageURL: cover,
		})
	}
	return books, nil
}

// bookIDFromHref returns the book_uni_id value of a reader link.
func bookIDFromHref(href string) string {
	i := strings.LastIndex(href, "book_uni_id=")
	if i < 0 {
		return href
	}
	id := href[i+len("book_uni_id="):]
	if j := strings.IndexAny(id, "&#"); j >= 0 {
		id = id[:j]
	}
	return id
}

// findHeadingLink returns the first <a> that is a direct child of an <h3>
// inside n.
func findHeadingLink(n *html.Node) *html.Node {
	for _, h3 := range findElements(n, "h3") {
		for c := h3.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "a" {
				return c
			}
		}
	}
	return nil
}

// findElementByID performs a depth-first search for the element whose id
// attribute equals id.
func findElementByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := getAttr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// findElements collects every descendant element of n with the given tag, in
// document order.
func findElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, _ := getAttr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// nodeTextContent recursively collects all text content within a node.
func nodeTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeTextContent(c))
	}
	return sb.String()
}
