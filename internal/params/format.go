package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatValue renders a parameter value the way it appears in sweep
// directory names: integers in decimal, floats in their shortest form.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "none"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case json.Number:
		return FormatValue(NormalizeNumber(v))
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(v float64) string {
	if !math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// NormalizeNumber converts a decoded JSON number into int64 when it has no
// fractional or exponent part and into float64 otherwise. A json.Number that
// cannot be parsed is returned as its string form.
func NormalizeNumber(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return s
}
