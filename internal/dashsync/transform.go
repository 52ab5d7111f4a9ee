package dashsync

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Chain applies transforms left to right, stopping at the first error or
// nil value.
func Chain(transforms ...Transform) Transform {
	return func(v any) (any, error) {
		var err error
		for _, t := range transforms {
			v, err = t(v)
			if err != nil || v == nil {
				return v, err
			}
		}
		return v, nil
	}
}

// ParseFloat parses numeric strings, accepting the German decimal comma
// and thousands dots the BNetzA exports use. Numeric values pass through.
func ParseFloat(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse float %q", t)
		}
		return f, nil
	default:
		return nil, eris.Errorf("cannot parse %T as float", v)
	}
}

// Round rounds floats to the given number of decimal places.
func Round(places int) Transform {
	factor := math.Pow(10, float64(places))
	return func(v any) (any, error) {
		f, ok := v.(float64)
		if !ok {
			return nil, eris.Errorf("round: expected float64, got %T", v)
		}
		return math.Round(f*factor) / factor, nil
	}
}

// NullIf maps a sentinel value to nil. The DWD product files use -999
// for missing observations.
func NullIf(sentinel float64) Transform {
	return func(v any) (any, error) {
		if f, ok := v.(float64); ok && f == sentinel {
			return nil, nil
		}
		return v, nil
	}
}

// ParseDate parses a date string in one of the given layouts and renders
// it as ISO 8601 (2006-01-02).
func ParseDate(layouts ...string) Transform {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, eris.Errorf("parse date: expected string, got %T", v)
		}
		s = strings.TrimSpace(s)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return nil, eris.Errorf("parse date: %q matches none of %v", s, layouts)
	}
}

// TrimString trims surrounding whitespace from string values.
func TrimString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, eris.Errorf("trim: expected string, got %T", v)
	}
	return strings.TrimSpace(s), nil
}
