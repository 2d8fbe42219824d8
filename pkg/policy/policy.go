// Package policy holds the fetch policies that make the include resolver
// behave like a particular ESI processor.
package policy

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/esi-assembler/pkg/cache"
)

// Preset names a built-in policy.
type Preset string

const (
	// PresetDefault places no limit on include nesting.
	PresetDefault Preset = "default"

	// PresetAkamai caps include nesting the way Akamai edge servers do.
	PresetAkamai Preset = "akamai"
)

// AkamaiMaxNestedIncludes is the nesting depth documented for Akamai ESI.
const AkamaiMaxNestedIncludes = 5

// Policy configures include resolution and fragment fetching.
//
// A Policy is a plain value: copies share only the Cache.
type Policy struct {
	// Name identifies the policy in logs and metrics.
	Name string

	// MaxNestedIncludes is the deepest include level allowed.
	// Zero means unlimited.
	MaxNestedIncludes int

	// ChaseRedirects makes the fetcher follow 301/302 responses.
	ChaseRedirects bool

	// Cache backs fragment fetches. Nil disables caching.
	//
	// Entries are keyed by absolute URL only. Same-origin fetches forward
	// Cookie and Authorization, so a fragment that varies by user is cached
	// once and then served to every later request for that URL. Attach a
	// cache only when fragments are public.
	Cache cache.Store
}

// Default returns the unrestricted policy: unlimited depth, no redirect
// chasing, no cache.
func Default() Policy {
	return Policy{Name: string(PresetDefault)}
}

// Akamai returns the depth-capped policy.
func Akamai() Policy {
	return Policy{
		Name:              string(PresetAkamai),
		MaxNestedIncludes: AkamaiMaxNestedIncludes,
	}
}

// New builds a custom policy. maxNestedIncludes of zero means unlimited.
func New(name string, maxNestedIncludes int, chaseRedirects bool) (Policy, error) {
	p := Policy{
		Name:              name,
		MaxNestedIncludes: maxNestedIncludes,
		ChaseRedirects:    chaseRedirects,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Presets lists the built-in presets.
func Presets() []Preset {
	return []Preset{PresetDefault, PresetAkamai}
}

// ParsePreset resolves a preset identifier, case-insensitively.
func ParsePreset(name string) (Preset, error) {
	switch p := Preset(strings.ToLower(strings.TrimSpace(name))); p {
	case PresetDefault, PresetAkamai:
		return p, nil
	default:
		return "", fmt.Errorf("unknown policy %q", name)
	}
}

// ForPreset returns the policy of a built-in preset.
func ForPreset(p Preset) (Policy, error) {
	switch p {
	case PresetDefault:
		return Default(), nil
	case PresetAkamai:
		return Akamai(), nil
	default:
		return Policy{}, fmt.Errorf("unknown policy %q", p)
	}
}

// Lookup returns the policy registered under name.
func Lookup(name string) (Policy, error) {
	p, err := ParsePreset(name)
	if err != nil {
		return Policy{}, err
	}
	return ForPreset(p)
}

// WithCache returns a copy of p backed by store.
func (p Policy) WithCache(store cache.Store) Policy {
	p.Cache = store
	return p
}

// WithChaseRedirects returns a copy of p with redirect chasing set.
func (p Policy) WithChaseRedirects(chase bool) Policy {
	p.ChaseRedirects = chase
	return p
}

// Limited reports whether the policy caps include nesting.
func (p Policy) Limited() bool {
	return p.MaxNestedIncludes > 0
}

// Exceeds reports whether depth is deeper than the policy allows.
func (p Policy) Exceeds(depth int) bool {
	return p.Limited() && depth > p.MaxNestedIncludes
}

// Validate checks the policy for impossible settings.
func (p Policy) Validate() error {
	if p.MaxNestedIncludes < 0 {
		return fmt.Errorf("max_nested_includes must be >= 0 (got %d)", p.MaxNestedIncludes)
	}
	return nil
}

// String returns the policy name.
func (p Policy) String() string {
	if p.Name == "" {
		return "custom"
	}
	return p.Name
}
