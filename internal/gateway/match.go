package gateway

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"time"
)

// normalize converts a value into the shapes every backend hands back:
// integers become int64, floats float64, slices []interface{} and string
// keyed maps map[string]interface{}.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint:
		return int64(t)
	case uint64:
		return int64(t)
	case uint32:
		return int64(t)
	case uint16:
		return int64(t)
	case uint8:
		return int64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case time.Time:
		return t.Round(0)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.Round(0)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	}
	return v
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// compare orders two normalized scalars. ok is false when they are not
// comparable.
func compare(a, b interface{}) (c int, ok bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpInt(x, y), true
		case float64:
			return cmpFloat(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmpFloat(x, float64(y)), true
		case float64:
			return cmpFloat(x, y), true
		}
	case string:
		if y, isStr := b.(string); isStr {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, isTime := b.(time.Time); isTime {
			switch {
			case x.Before(y):
				return -1, true
			case x.After(y):
				return 1, true
			}
			return 0, true
		}
	case bool:
		if y, isBool := b.(bool); isBool {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func equal(a, b interface{}) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

func getPath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = data
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(data map[string]interface{}, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// applyPatch writes patch into data in place, resolving Increment values
// against the current field.
func applyPatch(data, patch map[string]interface{}) {
	for path, v := range patch {
		if inc, ok := v.(Increment); ok {
			var base int64
			if cur, found := getPath(data, path); found {
				switch n := normalize(cur).(type) {
				case int64:
					base = n
				case float64:
					base = int64(n)
				}
			}
			setPath(data, path, base+int64(inc))
			continue
		}
		setPath(data, path, normalize(v))
	}
}

func matches(data map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		v, ok := getPath(data, f.Field)
		want := normalize(f.Value)
		switch f.Op {
		case OpEqual:
			if !ok || !equal(v, want) {
				return false
			}
		case OpNotEqual:
			if !ok || equal(v, want) {
				return false
			}
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			if !ok {
				return false
			}
			c, comparable := compare(v, want)
			if !comparable {
				return false
			}
			if (f.Op == OpLess && c >= 0) ||
				(f.Op == OpLessEqual && c > 0) ||
				(f.Op == OpGreater && c <= 0) ||
				(f.Op == OpGreaterEqual && c < 0) {
				return false
			}
		case OpArrayContains:
			arr, isArr := v.([]interface{})
			if !ok || !isArr {
				return false
			}
			found := false
			for _, e := range arr {
				if equal(e, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// evaluate filters, orders and limits docs the way Firestore does: documents
// missing the order field are excluded and ties break on document id.
func evaluate(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if !matches(d.Data, q.Filters) {
			continue
		}
		if q.OrderBy != nil {
			if _, ok := getPath(d.Data, q.OrderBy.Field); !ok {
				continue
			}
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != nil {
			a, _ := getPath(out[i].Data, q.OrderBy.Field)
			b, _ := getPath(out[j].Data, q.OrderBy.Field)
			if c, ok := compare(a, b); ok && c != 0 {
				if q.OrderBy.Direction == Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// clone deep-copies a normalized value.
func clone(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = clone(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = clone(t[i])
		}
		return out
	}
	return v
}

func cloneDoc(d Document) Document {
	return Document{ID: d.ID, Data: clone(d.Data).(map[string]interface{})}
}
