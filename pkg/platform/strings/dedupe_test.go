package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	cases := map[string]struct {
		in, want []string
	}{
		"nil stays nil":              {in: nil, want: nil},
		"empty stays empty":          {in: []string{}, want: []string{}},
		"first occurrence wins":      {in: []string{" physics ", "math", "physics"}, want: []string{"physics", "math"}},
		"blanks are dropped":         {in: []string{"", "  ", "math"}, want: []string{"math"}},
		"case is significant":        {in: []string{"Math", "math"}, want: []string{"Math", "math"}},
		"whitespace-only input ends": {in: []string{" ", "\t"}, want: []string{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DedupeAndTrim(tc.in))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	assert.Nil(t, DedupeAndTrimLower(nil))
	assert.Equal(t, []string{"engineering", "law"}, DedupeAndTrimLower([]string{" Engineering", "LAW", "engineering "}))
}

func TestSplitDedupe(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2", "c"}, SplitDedupe([]string{"a:1, b:2", "c", "a:1"}))
	assert.Empty(t, SplitDedupe(nil))
}
