// Package version provides the bridge version and gdb version detection.
package version

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// Version is the current version of gdb-bridge
	Version = "0.2.0"

	// DefaultMinGDB is the oldest gdb with the MI features the bridge relies on
	// (mi-async, -exec-step --reverse).
	DefaultMinGDB = "7.12"
)

var versionPattern = regexp.MustCompile(`\b(\d+)\.(\d+)(?:\.(\d+))?`)

// GetVersion returns the current version
func GetVersion() string {
	return Version
}

// ParseGDBVersion extracts the version from gdb's banner, e.g.
// "GNU gdb (Ubuntu 12.1-0ubuntu1~22.04) 12.1". Distributions put their own
// numbers in the parenthesised vendor string, so the last match on the first line wins.
func ParseGDBVersion(banner string) (*semver.Version, error) {
	line := strings.TrimSpace(banner)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	matches := versionPattern.FindAllString(line, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no version number in gdb banner %q", line)
	}

	v, err := semver.NewVersion(matches[len(matches)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid gdb version in banner %q: %w", line, err)
	}
	return v, nil
}

// AtLeast reports whether v satisfies the minimum version min. An empty min always passes.
func AtLeast(v *semver.Version, min string) (bool, error) {
	if min == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(">= " + min)
	if err != nil {
		return false, fmt.Errorf("invalid minimum gdb version %q: %w", min, err)
	}
	return c.Check(v), nil
}
