package testkit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Lookup walks doc along a dotted path. Numeric segments index arrays and
// "#" yields an array length.
func Lookup(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			if seg == "#" {
				cur = float64(len(v))
				continue
			}
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// AssertPaths checks every path of want against doc. Values compare after a
// JSON round trip, so 3 and 3.0 are equal.
func AssertPaths(t *testing.T, doc any, want map[string]any) {
	t.Helper()
	for path, exp := range want {
		got, ok := Lookup(doc, path)
		if !assert.True(t, ok, "%s not found", path) {
			continue
		}
		assert.Equal(t, normalize(exp), normalize(got), path)
	}
}

func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
