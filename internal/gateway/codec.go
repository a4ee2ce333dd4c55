package gateway

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// timeKey tags instants inside JSON documents so they decode back to
// time.Time instead of strings.
const timeKey = "$time"

func encodeData(data map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(tagTimes(data))
	if err != nil {
		return nil, errors.Wrap(err, "encode document")
	}
	return b, nil
}

func decodeData(b []byte) (map[string]interface{}, error) {
	if len(b) == 0 {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	out, _ := untagTimes(raw).(map[string]interface{})
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func tagTimes(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return map[string]interface{}{timeKey: t.UTC().Format(time.RFC3339Nano)}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = tagTimes(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = tagTimes(t[i])
		}
		return out
	}
	return v
}

func untagTimes(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 1 {
			if s, ok := t[timeKey].(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return ts
				}
			}
		}
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = untagTimes(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = untagTimes(t[i])
		}
		return out
	}
	return normalize(v)
}
