package query

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapquery/pkg/connector"
	"github.com/leapstack-labs/leapquery/pkg/core"
)

// ParamMode selects how compiled parameters reach the backend.
type ParamMode string

// Parameter modes.
const (
	// ParamBind passes values as driver arguments behind backend placeholders.
	ParamBind ParamMode = "bind"
	// ParamSubstitute splices values into the query text.
	ParamSubstitute ParamMode = "substitute"
)

// ParseParamMode validates a configured mode. Empty selects ParamBind.
func ParseParamMode(s string) (ParamMode, error) {
	switch ParamMode(s) {
	case "", ParamBind:
		return ParamBind, nil
	case ParamSubstitute:
		return ParamSubstitute, nil
	}
	return "", core.ErrValidation("unknown param_mode %q (expected bind or substitute)", s)
}

// markerPattern matches a named marker without matching a prefix of a
// longer name: :param_1 never matches inside :param_10.
var markerPattern = regexp.MustCompile(`:(param_\d+(?:_\d+)?)\b`)

// Bind rewrites named markers into the connector's placeholder style and
// returns the positional arguments. With dollar placeholders a name used
// twice reuses its position.
func Bind(sql string, params map[string]any, style connector.BindStyle) (string, []any, error) {
	var (
		args     []any
		missing  string
		position = make(map[string]int)
	)
	out := markerPattern.ReplaceAllStringFunc(sql, func(m string) string {
		name := markerPattern.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		if style == connector.BindDollar {
			if n, seen := position[name]; seen {
				return "$" + strconv.Itoa(n)
			}
			args = append(args, v)
			position[name] = len(args)
			return "$" + strconv.Itoa(len(args))
		}
		args = append(args, v)
		return "?"
	})
	if missing != "" {
		return "", nil, core.ErrValidation("no value for parameter %q", missing)
	}
	return out, args, nil
}

// Substitute splices parameter values into the query text. Strings are
// wrapped in single quotes without escaping, nil becomes NULL and other
// values are written with their default formatting.
//
// Only use this with trusted input; see ParamBind.
func Substitute(sql string, params map[string]any) string {
	return markerPattern.ReplaceAllStringFunc(sql, func(m string) string {
		name := markerPattern.FindStringSubmatch(m)[1]
		v, ok := params[name]
		if !ok {
			return m
		}
		return literal(v)
	})
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + x + "'"
	case time.Time:
		return "'" + x.Format(time.RFC3339Nano) + "'"
	default:
		return fmt.Sprint(x)
	}
}
