package cache

import (
	"time"
)

// Entry is a fragment body as stored in a shared store.
type Entry struct {
	// Data is the fragment body
	Data []byte `json:"data"`

	// URL is the absolute URL the body was fetched from
	URL string `json:"url"`

	// CachedAt is when we cached this fragment
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`
}

// NewEntry creates an entry for body that expires after ttl.
func NewEntry(url string, body []byte, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:     body,
		URL:      url,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
