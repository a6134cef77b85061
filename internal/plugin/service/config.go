package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/keyledsd/keyledsd/internal/keydb"
	"github.com/keyledsd/keyledsd/internal/render/color"
)

// GetConfig decodes the raw configuration value under key into one of the
// supported option kinds: string, int (parsed with strconv.Atoi; no range
// check is applied), time.Duration,
// color.RGBA, []color.RGBA, or keydb.KeyGroup. The concrete kind is picked
// by T via a type switch, since Go does not allow switching on a type
// parameter directly.
//
// A legacy fallback applies only for T = []color.RGBA: if key itself is
// not present as a sequence, the scalars key+"0", key+"1", … are collected
// instead, for configuration documents predating the plural-key form.
func GetConfig[T any](s *Service, key string) (T, error) {
	var zero T
	raw, ok := s.config[key]

	switch any(zero).(type) {
	case string:
		if !ok {
			return zero, fmt.Errorf("service: missing option %q", key)
		}
		str, ok := raw.(string)
		if !ok {
			return zero, fmt.Errorf("service: option %q is not a string", key)
		}
		return any(str).(T), nil

	case int:
		if !ok {
			return zero, fmt.Errorf("service: missing option %q", key)
		}
		str, ok := raw.(string)
		if !ok {
			return zero, fmt.Errorf("service: option %q is not a scalar", key)
		}
		n, err := strconv.Atoi(str)
		if err != nil {
			return zero, fmt.Errorf("service: option %q: %w", key, err)
		}
		return any(n).(T), nil

	case time.Duration:
		if !ok {
			return zero, fmt.Errorf("service: missing option %q", key)
		}
		str, ok := raw.(string)
		if !ok {
			return zero, fmt.Errorf("service: option %q is not a scalar", key)
		}
		d, err := time.ParseDuration(str)
		if err != nil {
			return zero, fmt.Errorf("service: option %q: %w", key, err)
		}
		return any(d).(T), nil

	case color.RGBA:
		if !ok {
			return zero, fmt.Errorf("service: missing option %q", key)
		}
		str, ok := raw.(string)
		if !ok {
			return zero, fmt.Errorf("service: option %q is not a scalar", key)
		}
		c, err := resolveColor(s, str)
		if err != nil {
			return zero, fmt.Errorf("service: option %q: %w", key, err)
		}
		return any(c).(T), nil

	case []color.RGBA:
		seq, err := getColorSequence(s, key, raw, ok)
		if err != nil {
			return zero, err
		}
		return any(seq).(T), nil

	case keydb.KeyGroup:
		if !ok {
			return zero, fmt.Errorf("service: missing option %q", key)
		}
		name, ok := raw.(string)
		if !ok {
			return zero, fmt.Errorf("service: option %q is not a scalar", key)
		}
		g, found := s.KeyGroup(name)
		if !found {
			return zero, fmt.Errorf("service: key group %q not found", name)
		}
		return any(g).(T), nil

	default:
		return zero, fmt.Errorf("service: unsupported config type for %q", key)
	}
}

func resolveColor(s *Service, str string) (color.RGBA, error) {
	if c, ok := s.colors[str]; ok {
		return c, nil
	}
	return color.ParseRGBA(str)
}

func getColorSequence(s *Service, key string, raw any, ok bool) ([]color.RGBA, error) {
	if ok {
		list, isList := raw.([]string)
		if !isList {
			return nil, fmt.Errorf("service: option %q is not a sequence", key)
		}
		out := make([]color.RGBA, 0, len(list))
		for _, str := range list {
			c, err := resolveColor(s, str)
			if err != nil {
				return nil, fmt.Errorf("service: option %q: %w", key, err)
			}
			out = append(out, c)
		}
		return out, nil
	}

	// Legacy fallback: colorN scalars (color0, color1, ...).
	var out []color.RGBA
	for i := 0; ; i++ {
		v, ok := s.config[fmt.Sprintf("%s%d", key, i)]
		if !ok {
			break
		}
		str, isStr := v.(string)
		if !isStr {
			return nil, fmt.Errorf("service: option %q%d is not a scalar", key, i)
		}
		c, err := resolveColor(s, str)
		if err != nil {
			return nil, fmt.Errorf("service: option %q%d: %w", key, i, err)
		}
		out = append(out, c)
	}
	if out == nil {
		return nil, fmt.Errorf("service: missing option %q", key)
	}
	return out, nil
}
