package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Scope carries values from earlier actions to later ones within one run.
// Values seeded from operation params arrive JSON-decoded, so numeric getters
// accept float64 as well as native ints.
type Scope map[string]any

func (s Scope) GetString(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

func (s Scope) GetInt(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func (s Scope) GetFloat(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (s Scope) GetInts(key string) []int {
	switch v := s[key].(type) {
	case []int:
		return v
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			if f, ok := item.(float64); ok {
				out = append(out, int(f))
			}
		}
		return out
	}
	return nil
}

func (s Scope) GetStrings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// String renders the scope with sorted keys for failure messages.
func (s Scope) String() string {
	keys := slices.Sorted(maps.Keys(s))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, s[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
