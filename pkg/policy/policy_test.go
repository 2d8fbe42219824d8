package policy

import (
	"testing"

	"github.com/Sternrassler/esi-assembler/pkg/cache"
)

func TestPresets(t *testing.T) {
	tests := []struct {
		name      string
		policy    Policy
		wantLimit int
		wantChase bool
	}{
		{
			name:      "default",
			policy:    Default(),
			wantLimit: 0,
		},
		{
			name:      "akamai",
			policy:    Akamai(),
			wantLimit: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.policy.MaxNestedIncludes != tt.wantLimit {
				t.Errorf("MaxNestedIncludes = %d, want %d", tt.policy.MaxNestedIncludes, tt.wantLimit)
			}
			if tt.policy.ChaseRedirects != tt.wantChase {
				t.Errorf("ChaseRedirects = %v, want %v", tt.policy.ChaseRedirects, tt.wantChase)
			}
			if tt.policy.Cache != nil {
				t.Error("Presets must not carry a cache")
			}
			if tt.policy.String() != tt.name {
				t.Errorf("String() = %q, want %q", tt.policy.String(), tt.name)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLimit int
		wantErr   bool
	}{
		{name: "default", input: "default", wantLimit: 0},
		{name: "akamai", input: "akamai", wantLimit: 5},
		{name: "case insensitive", input: " Akamai ", wantLimit: 5},
		{name: "unknown", input: "varnish", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && p.MaxNestedIncludes != tt.wantLimit {
				t.Errorf("MaxNestedIncludes = %d, want %d", p.MaxNestedIncludes, tt.wantLimit)
			}
		})
	}
}

func TestExceeds(t *testing.T) {
	akamai := Akamai()
	for depth := 0; depth <= AkamaiMaxNestedIncludes; depth++ {
		if akamai.Exceeds(depth) {
			t.Errorf("akamai.Exceeds(%d) = true, want false", depth)
		}
	}
	if !akamai.Exceeds(AkamaiMaxNestedIncludes + 1) {
		t.Errorf("akamai.Exceeds(%d) = false, want true", AkamaiMaxNestedIncludes+1)
	}

	if Default().Exceeds(1000) {
		t.Error("default policy must not limit depth")
	}
}

func TestWithers_DoNotMutate(t *testing.T) {
	lru, err := cache.NewLRU(cache.DefaultLRUConfig())
	if err != nil {
		t.Fatalf("NewLRU failed: %v", err)
	}

	base := Akamai()
	custom := base.WithCache(cache.NewMemoryStore(lru)).WithChaseRedirects(true)

	if base.Cache != nil || base.ChaseRedirects {
		t.Error("Withers must not modify the receiver")
	}
	if custom.Cache == nil || !custom.ChaseRedirects {
		t.Error("Withers did not apply")
	}
	if custom.MaxNestedIncludes != AkamaiMaxNestedIncludes {
		t.Error("Withers must keep the depth limit")
	}
}

func TestValidate(t *testing.T) {
	if err := (Policy{MaxNestedIncludes: -1}).Validate(); err == nil {
		t.Error("Expected error for negative depth")
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestNew(t *testing.T) {
	p, err := New("edge", 3, true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.String() != "edge" || p.MaxNestedIncludes != 3 || !p.ChaseRedirects {
		t.Errorf("New() = %+v", p)
	}
	if !p.Exceeds(4) || p.Exceeds(3) {
		t.Error("Exceeds should trip only above the configured depth")
	}

	if _, err := New("broken", -1, false); err == nil {
		t.Error("Expected error for negative depth")
	}
}
