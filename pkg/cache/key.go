package cache

import (
	"strings"
)

// DefaultKeyPrefix namespaces fragment keys in a shared store.
const DefaultKeyPrefix = "esi"

// Key identifies a fragment in a shared store.
type Key struct {
	// Prefix namespaces keys of one deployment (default "esi")
	Prefix string

	// URL is the fully-resolved absolute fragment URL
	URL string
}

// String generates the store key.
// Format: prefix:fragment:url
//
// Example:
//
//	esi:fragment:https://example.com/header.html
func (k Key) String() string {
	prefix := strings.Trim(k.Prefix, ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":fragment:" + k.URL
}
