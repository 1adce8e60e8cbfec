package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vertextoedge/batch-bootstrapper/internal/domain"
)

// ServerVersion is a parsed dotted server version. Missing components are 0.
type ServerVersion struct {
	Raw        string
	Components []int
}

// Component returns the i-th numeric component, or 0 when absent
func (v ServerVersion) Component(i int) int {
	if i < 0 || i >= len(v.Components) {
		return 0
	}
	return v.Components[i]
}

// Major returns the first component
func (v ServerVersion) Major() int { return v.Component(0) }

// Minor returns the second component
func (v ServerVersion) Minor() int { return v.Component(1) }

// String returns the raw version string
func (v ServerVersion) String() string { return v.Raw }

// ParseServerVersion parses a dotted version such as "3.4", "3.4.1" or
// "3.10-SNAPSHOT". A non-numeric suffix ends the numeric part of the version.
func ParseServerVersion(raw string) (ServerVersion, error) {
	v := ServerVersion{Raw: strings.TrimSpace(raw)}
	if v.Raw == "" {
		return v, fmt.Errorf("%w: empty version", domain.ErrInvalidInput)
	}

	for _, part := range strings.Split(v.Raw, ".") {
		digits := leadingDigits(part)
		if digits == "" {
			break
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return v, fmt.Errorf("%w: version component %q: %v", domain.ErrInvalidInput, part, err)
		}
		v.Components = append(v.Components, n)
		if len(digits) != len(part) {
			break
		}
	}

	if len(v.Components) == 0 {
		return v, fmt.Errorf("%w: version %q is not numeric", domain.ErrInvalidInput, raw)
	}
	return v, nil
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// CompareVersions compares two parsed versions component-wise.
// Returns -1, 0 or 1.
func CompareVersions(a, b ServerVersion) int {
	n := len(a.Components)
	if len(b.Components) > n {
		n = len(b.Components)
	}
	for i := 0; i < n; i++ {
		x, y := a.Component(i), b.Component(i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// lastLegacyVersion is the newest server version without the batch index
var lastLegacyVersion = ServerVersion{Raw: "3.4", Components: []int{3, 4}}

// IsLegacyProtocol reports whether a server of the given version only exposes
// the comma-separated batch listing. Versions 1.x, 2.x and 3.0 to 3.4 (any
// patch) are legacy. Unparsable versions are treated as supporting the index.
func IsLegacyProtocol(version string) bool {
	v, err := ParseServerVersion(version)
	if err != nil {
		return false
	}
	switch v.Major() {
	case 1, 2:
		return true
	case 3:
		return v.Minor() <= lastLegacyVersion.Minor()
	default:
		return false
	}
}

// SelectProtocol returns the listing protocol to use against a server version
func SelectProtocol(version string) domain.Protocol {
	if IsLegacyProtocol(version) {
		return domain.ProtocolLegacy
	}
	return domain.ProtocolIndexed
}
