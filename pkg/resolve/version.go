package resolve

import (
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// StripRange reduces a version specifier to the literal version it names.
//
// Leading operators (^ ~ = v < >) and whitespace are removed. For compound
// ranges such as "1.2.3 - 2.0.0", ">=1.0.0 <2.0.0" or "1.x || 2.x" the first
// literal is kept.
func StripRange(spec string) string {
	s := strings.TrimSpace(spec)
	if i := strings.Index(s, "||"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimLeft(s, "^~=<> \t")
	if f := strings.Fields(s); len(f) > 0 {
		s = f[0]
	}
	return strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
}

// Compare orders two literal versions, returning -1, 0 or +1.
//
// Versions that parse as semver are compared with full semver precedence.
// Anything else falls back to comparing major, minor and patch as integers,
// with missing or non-numeric fields counting as zero.
func Compare(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	fa, fb := fields(a), fields(b)
	for i := range fa {
		switch {
		case fa[i] < fb[i]:
			return -1
		case fa[i] > fb[i]:
			return 1
		}
	}
	return 0
}

// Higher picks between the version already resolved and a newly proposed
// one. The existing version is kept unless proposed is strictly greater.
func Higher(existing, proposed string) string {
	if Compare(proposed, existing) > 0 {
		return proposed
	}
	return existing
}

func fields(v string) [3]uint64 {
	var out [3]uint64
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	for i := 0; i < len(out) && i < len(parts); i++ {
		if n, err := strconv.ParseUint(parts[i], 10, 64); err == nil {
			out[i] = n
		}
	}
	return out
}
