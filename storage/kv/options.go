package kv

import (
	"fmt"
	"strings"
	"time"
)

// String returns the string option called name or
// def if the option is not set
func (options PluginOptions) String(name string, def string) (string, error) {
	raw, ok := options[name]

	if !ok {
		return def, nil
	}

	s, ok := raw.(string)

	if !ok {
		return "", fmt.Errorf("%q must be a string", name)
	}

	return s, nil
}

// Int returns the integer option called name or
// def if the option is not set
func (options PluginOptions) Int(name string, def int) (int, error) {
	raw, ok := options[name]

	if !ok {
		return def, nil
	}

	switch i := raw.(type) {
	case int:
		return i, nil
	case int64:
		return int(i), nil
	case float64:
		if i == float64(int(i)) {
			return int(i), nil
		}
	}

	return 0, fmt.Errorf("%q must be an integer", name)
}

// Bool returns the boolean option called name or
// def if the option is not set
func (options PluginOptions) Bool(name string, def bool) (bool, error) {
	raw, ok := options[name]

	if !ok {
		return def, nil
	}

	b, ok := raw.(bool)

	if !ok {
		return false, fmt.Errorf("%q must be a boolean", name)
	}

	return b, nil
}

// Duration returns the duration option called name or
// def if the option is not set. Durations are written
// as strings such as "1.5s" or "200ms".
func (options PluginOptions) Duration(name string, def time.Duration) (time.Duration, error) {
	raw, ok := options[name]

	if !ok {
		return def, nil
	}

	switch d := raw.(type) {
	case time.Duration:
		return d, nil
	case string:
		parsed, err := time.ParseDuration(d)

		if err != nil {
			return 0, fmt.Errorf("%q must be a duration: %s", name, err)
		}

		return parsed, nil
	}

	return 0, fmt.Errorf("%q must be a duration", name)
}

// Strings returns the list option called name or def if the
// option is not set. A single string is split on commas.
func (options PluginOptions) Strings(name string, def []string) ([]string, error) {
	raw, ok := options[name]

	if !ok {
		return def, nil
	}

	switch list := raw.(type) {
	case string:
		return strings.Split(list, ","), nil
	case []string:
		return list, nil
	case []interface{}:
		result := make([]string, 0, len(list))

		for _, item := range list {
			s, ok := item.(string)

			if !ok {
				return nil, fmt.Errorf("%q must be a list of strings", name)
			}

			result = append(result, s)
		}

		return result, nil
	}

	return nil, fmt.Errorf("%q must be a list of strings", name)
}
