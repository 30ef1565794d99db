package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtLeast(t *testing.T) {
	cases := []struct {
		version, minimum string
		want             bool
	}{
		{"20.10.0", "20.10.0", true},
		{"19.3.0", "20.10.0", false},
		{"20.10.1", "20.10.0", true},
		// The encoding avoids lexicographic bugs: "9" < "10" numerically.
		{"9.0.0", "10.0.0", false},
		{"2.9.9", "2.10.0", false},
		{"v24.0.7", "20.10.0", true},
		{"25.0.3-ce", "25.0.0", true},
		{"2.20", "2.17.0", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AtLeast(tc.version, tc.minimum), "%s >= %s", tc.version, tc.minimum)
	}
}
