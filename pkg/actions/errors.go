package actions

import (
	"errors"
	"fmt"
)

// ErrMissingConfig marks a required action config field that is absent or empty.
var ErrMissingConfig = errors.New("missing required config")

// MissingConfig returns ErrMissingConfig annotated with the field name.
func MissingConfig(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingConfig, field)
}

// StringConfig returns config[key] when it is a non-empty string.
func StringConfig(config map[string]any, key string) (string, bool) {
	s, ok := config[key].(string)

	return s, ok && s != ""
}

// MapConfig returns config[key] when it is an object.
func MapConfig(config map[string]any, key string) map[string]any {
	m, _ := config[key].(map[string]any)

	return m
}
