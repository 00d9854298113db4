package sources

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Extract walks a decoded JSON document along a dot-separated path and
// returns the numeric value found there.
//
// Segments made only of digits index into arrays; every other segment is an
// object key. Empty segments are ignored, so "a..b" and ".a.b." resolve like
// "a.b". String leaves are parsed as decimal floats, which covers exchanges
// that quote prices as JSON strings.
func Extract(doc interface{}, path string) (float64, error) {
	current := doc
	for _, raw := range strings.Split(path, ".") {
		segment := strings.TrimSpace(raw)
		if segment == "" {
			continue
		}
		if current == nil {
			return 0, fmt.Errorf("%w: %q in %q", ErrPathNotFound, segment, path)
		}

		if isIndex(segment) {
			arr, ok := current.([]interface{})
			if !ok {
				return 0, fmt.Errorf("%w: %q is not an array index here", ErrPathNotFound, segment)
			}
			idx, err := strconv.Atoi(segment)
			if err != nil || idx >= len(arr) {
				return 0, fmt.Errorf("%w: index %s out of range (len %d)", ErrPathNotFound, segment, len(arr))
			}
			current = arr[idx]
			continue
		}

		obj, ok := current.(map[string]interface{})
		if !ok {
			return 0, fmt.Errorf("%w: %q is not an object key here", ErrPathNotFound, segment)
		}
		next, ok := obj[segment]
		if !ok {
			return 0, fmt.Errorf("%w: key %q", ErrPathNotFound, segment)
		}
		current = next
	}

	if current == nil {
		return 0, fmt.Errorf("%w: %q resolved to null", ErrPathNotFound, path)
	}
	return toFloat(current)
}

func isIndex(segment string) bool {
	for _, r := range segment {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, error) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	case []interface{}:
		// A one-element array renders as its element, e.g. ["5"] reads as 5.
		if len(n) != 1 {
			return 0, fmt.Errorf("%w: array of %d elements", ErrNotNumeric, len(n))
		}
		return toFloat(n[0])
	case bool, map[string]interface{}:
		return 0, fmt.Errorf("%w: got %T", ErrNotNumeric, v)
	default:
		f, err = strconv.ParseFloat(fmt.Sprint(n), 64)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, f)
	}
	return f, nil
}
