// ABOUTME: Tests for version information
// ABOUTME: Covers build-time overrides and the user agent string
package version

import (
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"version", Version},
		{"product", Product},
		{"manufacturer", Manufacturer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Fatal("expected a value")
			}
			if strings.ContainsAny(tt.value, " \t\n/") {
				t.Errorf("expected a single token, got %q", tt.value)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "dubcast/"+Version {
		t.Errorf("expected dubcast/%s, got %s", Version, got)
	}
}

func TestUserAgentFollowsOverride(t *testing.T) {
	// -ldflags -X rewrites the variable before main runs; assigning it
	// here has the same effect.
	orig := Version
	defer func() { Version = orig }()

	Version = "1.4.0-rc1+g3f2a1c"
	if got := UserAgent(); got != "dubcast/1.4.0-rc1+g3f2a1c" {
		t.Errorf("expected stamped version, got %s", got)
	}
}
