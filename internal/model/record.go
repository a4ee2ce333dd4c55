package model

import (
	"time"

	"github.com/pkg/errors"
)

// Gateway documents come back with int64/float64 numbers, []interface{}
// arrays and map[string]interface{} objects whatever the backend. These
// helpers read fields out of them leniently; a missing or mistyped field
// yields the zero value.

func str(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func boolean(data map[string]interface{}, key string) bool {
	b, _ := data[key].(bool)
	return b
}

func integer(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func instant(data map[string]interface{}, key string) time.Time {
	switch t := data[key].(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func stringList(data map[string]interface{}, key string) []string {
	switch arr := data[key].(type) {
	case []string:
		return append([]string(nil), arr...)
	case []interface{}:
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func counts(data map[string]interface{}, key string) map[string]int {
	out := map[string]int{}
	switch m := data[key].(type) {
	case map[string]interface{}:
		for k, v := range m {
			out[k] = integer(v)
		}
	case map[string]int:
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

var errMissingID = errors.New("document has no id")
