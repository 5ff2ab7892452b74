package match

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Terms is a list of free-text terms. When decoded from JSON it accepts any
// value shape and coerces it with Strings instead of failing.
type Terms []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Terms) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Strings(raw)
	return nil
}

// Strings flattens an arbitrary decoded value into a list of strings.
// Lists and maps are walked recursively (map values in key order), scalars are
// stringified and empty entries are dropped. It never fails.
func Strings(v any) []string {
	out := []string{}
	collect(v, &out)
	return out
}

func collect(v any, out *[]string) {
	switch val := v.(type) {
	case nil:
		return
	case []string:
		for _, s := range val {
			appendTrimmed(out, s)
		}
	case Terms:
		for _, s := range val {
			appendTrimmed(out, s)
		}
	case []any:
		for _, item := range val {
			collect(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collect(val[k], out)
		}
	case map[string][]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collect(val[k], out)
		}
	default:
		appendTrimmed(out, stringify(val))
	}
}

func appendTrimmed(out *[]string, s string) {
	if s = strings.TrimSpace(s); s != "" {
		*out = append(*out, s)
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
