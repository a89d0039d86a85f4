package bookexport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Books.com.tw endpoints.
const (
	booksAPIBase          = "https://appapi-ebook.books.com.tw"
	booksDownloadInfoPath = "/V1.3/CMSAPIApp/BookDownLoadURL"
)

// checksumSeed is the character set shuffled into the image checksum.
const checksumSeed = "0693147180559AAC"

// Books implements Protocol for the Books.com.tw web reader. A single
// download-info call yields the content root and a download token; the token
// both authorizes resource requests and keys the stream decoder.
//
// The zero value targets the production endpoints.
type Books struct {
	// APIBase overrides the app API host, e.g. for tests.
	APIBase string

	// Now returns the request timestamp. Defaults to time.Now.
	Now func() time.Time

	// Rand shuffles the image checksum. Defaults to the global source.
	// Access is serialized, so one Books may bootstrap concurrent exports.
	Rand *rand.Rand

	mu sync.Mutex
}

// Source implements Protocol.
func (p *Books) Source() Source { return SourceBooks }

func (p *Books) apiBase() string {
	if p.APIBase != "" {
		return strings.TrimSuffix(p.APIBase, "/")
	}
	return booksAPIBase
}

func (p *Books) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// downloadInfo is the response of the download-info endpoint.
type downloadInfo struct {
	BookUniID     string          `json:"book_uni_id"`
	DownloadLink  string          `json:"download_link"`
	DownloadToken string          `json:"download_token"`
	Size          json.Number     `json:"size"`
	EncryptType   json.RawMessage `json:"encrypt_type"`
}

// Bootstrap implements Protocol.
func (p *Books) Bootstrap(ctx context.Context, t Transport, book Book, steps Stepper) (Session, error) {
	var info downloadInfo
	err := steps.Step("Fetching download info", func() error {
		query := url.Values{}
		query.Set("book_uni_id", book.ID)
		query.Set("t", strconv.FormatInt(p.now().Unix(), 10))
		if err := getJSON(ctx, t, p.apiBase()+booksDownloadInfoPath, query, nil, &info); err != nil {
			return err
		}
		if info.DownloadLink == "" {
			return fmt.Errorf("bookexport: download info of book %s has no download link: %w", book.ID, ErrMalformedInput)
		}
		if info.DownloadToken == "" {
			return fmt.Errorf("bookexport: download info of book %s has no download token: %w", book.ID, ErrMalformedInput)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &booksSession{
		downloadLink:  info.DownloadLink,
		downloadToken: info.DownloadToken,
		checksum:      p.checksum(),
	}, nil
}

func (p *Books) checksum() string {
	if p.Rand == nil {
		return shuffleChecksum(checksumSeed, nil)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return shuffleChecksum(checksumSeed, p.Rand)
}

// shuffleChecksum swaps every position of seed with a random position.
func shuffleChecksum(seed string, r *rand.Rand) string {
	intN := rand.IntN
	if r != nil {
		intN = r.IntN
	}
	b := []byte(seed)
	for i := range b {
		j := intN(len(b))
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// booksSession is the Session of a Books.com.tw export.
type booksSession struct {
	downloadLink  string
	downloadToken string
	checksum      string
}

func (s *booksSession) ResolveAbsolute(p string) string {
	return s.downloadLink + p
}

func (s *booksSession) Classify(p string) ResourceClass {
	return ClassifyExtension(p)
}

// Query returns DownloadToken for encrypted classes; images also carry the
// session checksum.
func (s *booksSession) Query(c ResourceClass) url.Values {
	switch c {
	case ClassImageEncrypted:
		return url.Values{
			"checksum":      {s.checksum},
			"DownloadToken": {s.downloadToken},
		}
	case ClassStreamEncrypted:
		return url.Values{"DownloadToken": {s.downloadToken}}
	}
	return nil
}

func (s *booksSession) Header() http.Header { return nil }

func (s *booksSession) KeyToken() string { return s.downloadToken }
