package table

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

// TypeOf returns the standard type of a normalized Go value.
func TypeOf(v any) core.StandardType {
	switch x := v.(type) {
	case int64, int, int32:
		return core.TypeInteger
	case float64, float32:
		return core.TypeFloat
	case bool:
		return core.TypeBoolean
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return core.TypeDate
		}
		return core.TypeTimestamp
	case map[string]any, []any, json.RawMessage:
		return core.TypeJSON
	default:
		return core.TypeString
	}
}

func inferType(rows [][]any, col int) core.StandardType {
	for _, r := range rows {
		if r[col] != nil {
			return TypeOf(r[col])
		}
	}
	return core.TypeString
}

// NormalizeValue converts driver values into the small set of Go types a
// Table holds: nil, int64, float64, string, bool, time.Time and JSON values.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x) //nolint:gosec // values beyond int64 are not produced by supported backends
	case uint:
		return int64(x) //nolint:gosec // see above
	case float32:
		return float64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x.String()
	case interface{ Float64() float64 }:
		return x.Float64()
	case fmt.Stringer:
		return x.String()
	default:
		return v
	}
}

// ConvertString parses a textual driver value into the Go type for typ.
// Values that do not parse are returned unchanged.
func ConvertString(s string, typ core.StandardType) any {
	switch typ {
	case core.TypeInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case core.TypeFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case core.TypeBoolean:
		switch strings.ToLower(s) {
		case "1", "true", "t":
			return true
		case "0", "false", "f":
			return false
		}
	case core.TypeDate, core.TypeTimestamp:
		if ts, ok := ParseTime(s); ok {
			return ts
		}
	case core.TypeJSON:
		var out any
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
	}
	return s
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006",
	"01/02/2006 15:04",
	"1/2/06",
	"1/2/06 15:04",
	"02-Jan-2006",
}

// ParseTime parses the date and timestamp layouts found in files and drivers.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToFloat converts numeric values, and strings holding numbers, to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, int, int32, float64, float32:
		return true
	}
	return false
}

// Compare orders two values. ok is false when the values are not comparable
// (either is nil, or their kinds differ and cannot be coerced).
func Compare(a, b any) (c int, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if isNumber(a) || isNumber(b) {
		fa, okA := ToFloat(a)
		fb, okB := ToFloat(b)
		if !okA || !okB {
			return 0, false
		}
		return cmpFloat(fa, fb), true
	}

	switch x := a.(type) {
	case string:
		y, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		var y time.Time
		switch bv := b.(type) {
		case time.Time:
			y = bv
		case string:
			t, parsed := ParseTime(bv)
			if !parsed {
				return 0, false
			}
			y = t
		default:
			return 0, false
		}
		return x.Compare(y), true
	}

	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b hold the same value. nil equals only nil.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

// keyOf renders values into a string usable as a map key. Numbers of
// different Go types that compare equal produce the same key. Free-form
// fields are length-prefixed so no two value lists share a key.
func keyOf(values []any) string {
	var sb strings.Builder
	for _, v := range values {
		switch x := v.(type) {
		case nil:
			sb.WriteString("0;")
		case string:
			writeKeyField(&sb, 's', x)
		case bool:
			writeKeyField(&sb, 'b', strconv.FormatBool(x))
		case time.Time:
			writeKeyField(&sb, 't', x.UTC().Format(time.RFC3339Nano))
		default:
			if f, ok := ToFloat(v); ok && isNumber(v) {
				writeKeyField(&sb, 'n', strconv.FormatFloat(f, 'g', -1, 64))
				continue
			}
			b, err := json.Marshal(v)
			if err != nil {
				writeKeyField(&sb, 'x', fmt.Sprintf("%T:%v", v, v))
				continue
			}
			writeKeyField(&sb, 'j', string(b))
		}
	}
	return sb.String()
}

func writeKeyField(sb *strings.Builder, tag byte, s string) {
	sb.WriteByte(tag)
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
}
