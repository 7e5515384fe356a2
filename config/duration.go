// config/duration.go
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDurationFlexible turns a viper value into a duration. Accepted forms:
// a time.Duration, a Go duration string ("90s", "2m"), or a bare number of
// seconds (numeric or string). Empty strings and unknown types fall back to
// def silently; invalid or non-positive values return def with an error so
// the caller can warn.
func parseDurationFlexible(raw interface{}, def time.Duration) (time.Duration, error) {
	switch t := raw.(type) {
	case time.Duration:
		return positive(t, def)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		if d, err := time.ParseDuration(s); err == nil {
			return positive(d, def)
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return seconds(float64(n), def)
		}
		return def, fmt.Errorf("cannot parse duration %q", s)
	case int:
		return seconds(float64(t), def)
	case int32:
		return seconds(float64(t), def)
	case int64:
		return seconds(float64(t), def)
	case float64:
		return seconds(t, def)
	default:
		// nil, bool, etc.
		return def, nil
	}
}

func positive(d, def time.Duration) (time.Duration, error) {
	if d <= 0 {
		return def, fmt.Errorf("duration must be >0")
	}
	return d, nil
}

func seconds(n float64, def time.Duration) (time.Duration, error) {
	if n <= 0 {
		return def, fmt.Errorf("seconds must be >0")
	}
	return time.Duration(n * float64(time.Second)), nil
}
