package validate

import (
	"strconv"
	"strings"
)

// encodeVersion decomposes a dot-separated version into a fixed-width
// numeric encoding (major*1e6 + minor*1e3 + patch) so comparisons are
// integer comparisons, not lexicographic ones.
func encodeVersion(v string) int64 {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+ "); i >= 0 {
		v = v[:i]
	}
	parts := strings.SplitN(v, ".", 3)
	var encoded int64
	for i := 0; i < 3; i++ {
		encoded *= 1000
		if i < len(parts) {
			n, err := strconv.Atoi(parts[i])
			if err == nil && n >= 0 {
				if n > 999 {
					n = 999
				}
				encoded += int64(n)
			}
		}
	}
	return encoded
}

// AtLeast reports whether version is greater than or equal to minimum.
func AtLeast(version, minimum string) bool {
	return encodeVersion(version) >= encodeVersion(minimum)
}
