// Package origin implements the Joiner-side origin validation from spec §4.4.3:
// every inbound encryptedMessage envelope carries an origin attached by the
// relay, and the Joiner must confirm it reduces to the origin encoded in the
// connection string it scanned.
package origin

import (
	"errors"
	"net/url"
	"strings"
)

// ErrMissingHost indicates the origin string has no host component.
var ErrMissingHost = errors.New("origin missing host")

// Reduce parses an origin string and reduces it to "scheme://host" with any
// port stripped, per spec §4.4.3. "https://example.com:443/ignored" and
// "https://example.com" both reduce to "https://example.com".
func Reduce(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", ErrMissingHost
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	if scheme == "" {
		return "", errors.New("origin missing scheme")
	}
	return scheme + "://" + host, nil
}

// Matches reports whether got reduces to the same scheme://host as expected.
// A malformed got is treated as a mismatch, never as an error: origin
// validation failures are reported to the caller as a dropped frame plus an
// Error event, not as a panic or a synchronous error.
func Matches(expected, got string) bool {
	wantReduced, err := Reduce(expected)
	if err != nil {
		return false
	}
	gotReduced, err := Reduce(got)
	if err != nil {
		return false
	}
	return wantReduced == gotReduced
}
