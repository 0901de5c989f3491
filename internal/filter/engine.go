// Package filter implements the feed item matching engine.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"feedwatcher/internal/model"
	"feedwatcher/internal/parser"
)

// Parameter names used by the built-in filter types.
const (
	ParamText    = "text"
	ParamPattern = "pattern"
	ParamDate    = "date"
)

// ConfigError reports a filter whose stored type or parameters cannot be
// evaluated.
type ConfigError struct {
	Type   model.FilterType
	Index  int
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("filter #%d (%s): %s", e.Index, e.Type, e.Reason)
}

// Predicate reports whether an item passes a compiled filter.
type Predicate func(item model.FeedItem) bool

type kind struct {
	params []string
	build  func(args map[string]string) (Predicate, error)
}

var registry = map[model.FilterType]kind{
	model.FilterTitleContains: {
		params: []string{ParamText},
		build: func(args map[string]string) (Predicate, error) {
			needle := strings.ToLower(args[ParamText])
			return func(item model.FeedItem) bool {
				return strings.Contains(strings.ToLower(item.Title), needle)
			}, nil
		},
	},
	model.FilterDescriptionContains: {
		params: []string{ParamText},
		build: func(args map[string]string) (Predicate, error) {
			needle := strings.ToLower(args[ParamText])
			return func(item model.FeedItem) bool {
				return strings.Contains(strings.ToLower(PlainText(item.Description)), needle)
			}, nil
		},
	},
	model.FilterContains: {
		params: []string{ParamText},
		build: func(args map[string]string) (Predicate, error) {
			needle := strings.ToLower(args[ParamText])
			return func(item model.FeedItem) bool {
				return strings.Contains(searchText(item), needle)
			}, nil
		},
	},
	model.FilterNotContains: {
		params: []string{ParamText},
		build: func(args map[string]string) (Predicate, error) {
			needle := strings.ToLower(args[ParamText])
			return func(item model.FeedItem) bool {
				return !strings.Contains(searchText(item), needle)
			}, nil
		},
	},
	model.FilterTitleRegex: {
		params: []string{ParamPattern},
		build: func(args map[string]string) (Predicate, error) {
			re, err := compileRegex(args[ParamPattern])
			if err != nil {
				return nil, err
			}
			return func(item model.FeedItem) bool {
				return re.MatchString(item.Title)
			}, nil
		},
	},
	model.FilterLinkRegex: {
		params: []string{ParamPattern},
		build: func(args map[string]string) (Predicate, error) {
			re, err := compileRegex(args[ParamPattern])
			if err != nil {
				return nil, err
			}
			return func(item model.FeedItem) bool {
				return item.Link != nil && re.MatchString(item.Link.String())
			}, nil
		},
	},
	model.FilterPublishedAfter: {
		params: []string{ParamDate},
		build: func(args map[string]string) (Predicate, error) {
			t, err := parseDateParam(args[ParamDate])
			if err != nil {
				return nil, err
			}
			return func(item model.FeedItem) bool { return item.Date.After(t) }, nil
		},
	},
	model.FilterPublishedBefore: {
		params: []string{ParamDate},
		build: func(args map[string]string) (Predicate, error) {
			t, err := parseDateParam(args[ParamDate])
			if err != nil {
				return nil, err
			}
			return func(item model.FeedItem) bool { return item.Date.Before(t) }, nil
		},
	},
}

// Types returns every supported filter type in name order.
func Types() []model.FilterType {
	out := make([]model.FilterType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequiredParams returns the parameter names a filter type needs.
func RequiredParams(t model.FilterType) ([]string, bool) {
	k, ok := registry[t]
	if !ok {
		return nil, false
	}
	return append([]string(nil), k.params...), true
}

// Compile checks a filter against the registry and returns its predicate.
func Compile(f model.Filter) (Predicate, error) {
	k, ok := registry[f.Type]
	if !ok {
		return nil, &ConfigError{Type: f.Type, Index: f.Index, Reason: "unknown filter type"}
	}

	args := make(map[string]string, len(k.params))
	for _, name := range k.params {
		v, ok := f.Param(name)
		if !ok {
			return nil, &ConfigError{Type: f.Type, Index: f.Index, Reason: fmt.Sprintf("missing parameter %q", name)}
		}
		if strings.TrimSpace(v) == "" {
			return nil, &ConfigError{Type: f.Type, Index: f.Index, Reason: fmt.Sprintf("parameter %q is empty", name)}
		}
		args[name] = v
	}

	pred, err := k.build(args)
	if err != nil {
		return nil, &ConfigError{Type: f.Type, Index: f.Index, Reason: err.Error()}
	}
	return pred, nil
}

// Validate reports whether a filter can be evaluated.
func Validate(f model.Filter) error {
	_, err := Compile(f)
	return err
}

// Match evaluates a single filter against an item.
func Match(f model.Filter, item model.FeedItem) (bool, error) {
	pred, err := Compile(f)
	if err != nil {
		return false, err
	}
	return pred(item), nil
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := compileRegex(pattern)
	return err
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}

func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := parser.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date: %w", err)
	}
	return t, nil
}

func searchText(item model.FeedItem) string {
	return strings.ToLower(item.Title + " " + PlainText(item.Description))
}
