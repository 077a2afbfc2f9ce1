package cache

import (
	"net/http"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when no Expires header is present.
	DefaultTTL = 5 * time.Minute
)

// NewEntry builds an Entry from a response and its already decoded body.
// fallback is used when the response carries no usable Expires header;
// zero selects DefaultTTL.
func NewEntry(resp *http.Response, body []byte, fallback time.Duration) *Entry {
	if fallback <= 0 {
		fallback = DefaultTTL
	}

	entry := &Entry{
		Data:     body,
		CachedAt: time.Now(),
	}
	if resp != nil {
		entry.StatusCode = resp.StatusCode
		entry.Expires = parseExpires(resp.Header, fallback)
	} else {
		entry.StatusCode = http.StatusOK
		entry.Expires = time.Now().Add(fallback)
	}
	return entry
}

// parseExpires parses the Expires header.
// Returns now + fallback if the header is missing or unparseable.
func parseExpires(headers http.Header, fallback time.Duration) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return time.Now().Add(fallback)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return time.Now().Add(fallback)
	}

	// Already expired: the entry will not be stored.
	if expires.Before(time.Now()) {
		return time.Now()
	}

	return expires
}
