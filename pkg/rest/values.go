package rest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// object is a result row that keeps keys in select order.
type object struct {
	keys []string
	vals map[string]any
}

func newObject() *object {
	return &object{vals: make(map[string]any)}
}

func (o *object) set(k string, v any) {
	if _, ok := o.vals[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.vals[k] = v
}

func (o *object) get(k string) any {
	return o.vals[k]
}

func (o *object) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		b.Write(key)
		b.WriteByte(':')
		val, err := json.Marshal(o.vals[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// equalValues compares a stored value with another stored value or with a
// literal from the query string.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return textOf(a) == textOf(b)
}

// compareValues orders numbers numerically and everything else as text. A
// string literal compared with a number is parsed as a number first.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	_, aStr := a.(string)
	_, bStr := b.(string)
	switch {
	case aNum && bNum && !(aStr && bStr):
		return cmpFloat(af, bf), true
	case isBool(a) || isBool(b):
		ab, aok := toBool(a)
		bb, bok := toBool(b)
		if !aok || !bok {
			return 0, false
		}
		return cmpBool(ab, bb), true
	}
	return strings.Compare(textOf(a), textOf(b)), true
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

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case bool:
		return 0, false
	}
	if f, ok := normalizeValue(v).(float64); ok {
		return f, true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "on", "1":
			return true, true
		case "false", "f", "no", "n", "off", "0":
			return false, true
		}
	case float64:
		return v != 0, true
	}
	return false, false
}

// textOf renders a value the way postgres casts it to text.
func textOf(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		b, _ := json.Marshal(v)
		return string(b)
	}
	return fmt.Sprint(v)
}

// castValue applies a ::type cast.
func castValue(v any, typ string) (any, *apiError) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if elem, ok := strings.CutSuffix(typ, "[]"); ok {
		arr, isArr := v.([]any)
		if v == nil {
			return nil, nil
		}
		if !isArr {
			return nil, errCast(v, typ)
		}
		out := make([]any, len(arr))
		for i, x := range arr {
			c, err := castValue(x, elem)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	if v == nil {
		if !knownType(typ) {
			return nil, errType(typ)
		}
		return nil, nil
	}

	switch typ {
	case "text", "varchar", "character varying", "char", "name", "citext":
		return textOf(v), nil
	case "int", "integer", "int2", "int4", "int8", "smallint", "bigint":
		if b, ok := v.(bool); ok {
			if b {
				return float64(1), nil
			}
			return float64(0), nil
		}
		f, ok := toFloat(v)
		if !ok {
			return nil, errCast(v, typ)
		}
		return math.Round(f), nil
	case "float", "float4", "float8", "real", "double precision", "numeric", "decimal":
		f, ok := toFloat(v)
		if !ok {
			return nil, errCast(v, typ)
		}
		return f, nil
	case "bool", "boolean":
		b, ok := toBool(v)
		if !ok {
			return nil, errCast(v, typ)
		}
		return b, nil
	case "json", "jsonb":
		if s, ok := v.(string); ok {
			var out any
			if err := json.Unmarshal([]byte(s), &out); err == nil {
				return out, nil
			}
		}
		return v, nil
	}
	return nil, errType(typ)
}

func knownType(typ string) bool {
	_, err := castValue("0", typ)
	return err == nil || err.Code != "42704"
}

// jsonStep is one -> or ->> operator of a json path.
type jsonStep struct {
	key  string
	text bool
}

// splitJSONPath splits "data->a->>b" into the column and its steps.
func splitJSONPath(name string) (string, []jsonStep) {
	i := strings.Index(name, "->")
	if i < 0 {
		return name, nil
	}
	col, rest := name[:i], name[i:]
	var steps []jsonStep
	for rest != "" {
		rest = strings.TrimPrefix(rest, "->")
		text := strings.HasPrefix(rest, ">")
		rest = strings.TrimPrefix(rest, ">")
		key := rest
		if j := strings.Index(rest, "->"); j >= 0 {
			key, rest = rest[:j], rest[j:]
		} else {
			rest = ""
		}
		steps = append(steps, jsonStep{key: strings.Trim(key, `'"`), text: text})
	}
	return col, steps
}

func walkJSON(v any, steps []jsonStep) any {
	for _, s := range steps {
		switch cur := v.(type) {
		case map[string]any:
			v = cur[s.key]
		case []any:
			idx, err := strconv.Atoi(s.key)
			if err != nil {
				return nil
			}
			if idx < 0 {
				idx += len(cur)
			}
			if idx < 0 || idx >= len(cur) {
				return nil
			}
			v = cur[idx]
		default:
			return nil
		}
		if s.text && v != nil {
			v = textOf(v)
		}
	}
	return v
}
