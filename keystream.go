package bookexport

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// KeySize is the length in bytes of a derived keystream.
const KeySize = sha256.Size

// partitionModulus bounds the offset at which the canonical path is spliced
// into the session token.
const partitionModulus = 64

// canonicalPathPattern captures everything after the host and the first three
// path segments, keeping the leading slash.
var canonicalPathPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*://(?:[^/]*/){3}[^/]*(/.+)$`)

// DeriveKey computes the 32-byte keystream for a resource from its absolute
// URL and the session token. The result is deterministic: identical inputs
// always yield identical keys.
//
// The URL must carry at least three path segments after the host followed by
// a non-empty remainder; otherwise DeriveKey returns a wrapped ErrMalformedInput.
func DeriveKey(resourceURL, sessionToken string) ([]byte, error) {
	canonical, err := canonicalPath(resourceURL)
	if err != nil {
		return nil, err
	}

	p, err := partition(canonical)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(splice(sessionToken, canonical, p)))
	return sum[:], nil
}

// canonicalPath extracts and percent-decodes the portion of resourceURL used
// as cryptographic input.
func canonicalPath(resourceURL string) (string, error) {
	m := canonicalPathPattern.FindStringSubmatch(resourceURL)
	if m == nil {
		return "", fmt.Errorf("bookexport: cannot canonicalise %q: %w", resourceURL, ErrMalformedInput)
	}
	decoded, err := url.PathUnescape(m[1])
	if err != nil {
		return "", fmt.Errorf("bookexport: decode path of %q: %v: %w", resourceURL, err, ErrMalformedInput)
	}
	return decoded, nil
}

// partition folds the MD5 hex digest of canonical into [0, 64) by summing its
// 4-digit hex groups.
func partition(canonical string) (int, error) {
	sum := md5.Sum([]byte(canonical))
	return partitionOfHex(hex.EncodeToString(sum[:]))
}

// partitionOfHex folds a hex digest in non-overlapping groups of four
// characters, reducing modulo 64 after every addition.
func partitionOfHex(digest string) (int, error) {
	p := 0
	for i := 0; i < len(digest); i += 4 {
		end := min(i+4, len(digest))
		v, err := strconv.ParseUint(digest[i:end], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("bookexport: invalid digest %q: %w", digest, ErrMalformedInput)
		}
		p = (p + int(v)) % partitionModulus
	}
	return p, nil
}

// splice inserts canonical into token at offset p. Offsets beyond the token
// are clamped, so the whole token becomes the prefix.
func splice(token, canonical string, p int) string {
	p = min(p, len(token))
	return token[:p] + canonical + token[p:]
}
