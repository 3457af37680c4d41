// Package template interpolates {{user.<prop>}} and {{event.<prop>}} placeholders in action configuration.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/spf13/cast"
)

var placeholder = regexp.MustCompile(`\{\{\s*(user|event)\.([A-Za-z0-9_.]+)\s*\}\}`)

// Interpolate replaces every resolvable placeholder in s. Placeholders that do not
// resolve are left verbatim.
func Interpolate(s string, event models.EventContext, user *models.UserContext) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholder.FindStringSubmatch(match)

		var (
			value any
			ok    bool
		)

		switch groups[1] {
		case "user":
			value, ok = ResolveUser(user, groups[2])
		case "event":
			value, ok = ResolveEvent(event, groups[2])
		}

		if !ok || value == nil {
			return match
		}

		return Stringify(value)
	})
}

// InterpolateValue walks maps and slices and interpolates every string it finds.
func InterpolateValue(v any, event models.EventContext, user *models.UserContext) any {
	switch typed := v.(type) {
	case string:
		return Interpolate(typed, event, user)
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = InterpolateValue(item, event, user)
		}

		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = InterpolateValue(item, event, user)
		}

		return out
	default:
		return v
	}
}

// ResolveUser looks a dot path up in the typed user attributes first and then in properties.
func ResolveUser(user *models.UserContext, path string) (any, bool) {
	if user == nil {
		return nil, false
	}

	if v, ok := Lookup(user.Fields(), path); ok {
		return v, true
	}

	return Lookup(user.Properties, path)
}

// ResolveEvent looks a dot path up in the event data. "timestamp", "type" and "source"
// resolve to the event envelope when the data does not define them.
func ResolveEvent(event models.EventContext, path string) (any, bool) {
	if v, ok := Lookup(event.EventData, path); ok {
		return v, true
	}

	switch path {
	case "timestamp":
		return event.Timestamp, true
	case "type", "eventType":
		return event.EventType, true
	case "source":
		return event.Source, true
	}

	return nil, false
}

// Lookup resolves a dot-separated path inside nested maps.
func Lookup(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	if v, ok := data[path]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}

	next, ok := data[head]
	if !ok {
		return nil, false
	}

	switch nested := next.(type) {
	case map[string]any:
		return Lookup(nested, rest)
	case map[string]string:
		v, ok := nested[rest]
		return v, ok
	default:
		return nil, false
	}
}

// Stringify renders a resolved value for substitution. Times use ISO-8601.
func Stringify(v any) string {
	switch typed := v.(type) {
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case *time.Time:
		if typed == nil {
			return ""
		}

		return typed.UTC().Format(time.RFC3339)
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return s
}
