package table

import (
	"cmp"
	"math"
	"strconv"
	"strings"
)

// Key returns the canonical join/group form of a cell. Integral numbers
// render without a fraction so int64(7), 7.0 and "7" share a key. A string
// only takes a numeric key when it is already in canonical form, so "07"
// and "7" stay distinct. The second result is false for null cells.
func Key(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		if math.IsNaN(x) {
			return "", false
		}
		return formatNumber(x), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Float converts a numeric cell to float64. Strings are not parsed.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// Compare orders cells: nulls first, then numbers by value, then strings
// lexically. Mixed number/string pairs compare numbers first.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	fa, aNum := Float(a)
	fb, bNum := Float(b)
	switch {
	case aNum && bNum:
		return cmp.Compare(fa, fb)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	ka, _ := Key(a)
	kb, _ := Key(b)
	return strings.Compare(ka, kb)
}
