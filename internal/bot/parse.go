package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"feedwatcher/internal/model"
)

// FilterArgs holds the parsed arguments of the /filter command.
type FilterArgs struct {
	QueryID    model.ID
	Type       model.FilterType
	Parameters []model.FilterParameter
}

// ParseFilterArgs parses arguments for /filter.
// Format: <query_id> <type> name=value [name=value...]
// Words without '=' continue the previous value, so values may contain spaces.
func ParseFilterArgs(args string) (FilterArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 3 {
		return FilterArgs{}, fmt.Errorf("usage: /filter <query_id> <type> name=value")
	}

	id, err := parseID(parts[0], "query")
	if err != nil {
		return FilterArgs{}, err
	}

	fa := FilterArgs{QueryID: id, Type: model.FilterType(parts[1])}
	var names []string
	values := make(map[string][]string)
	for _, word := range parts[2:] {
		name, value, ok := strings.Cut(word, "=")
		if !ok {
			if len(names) == 0 {
				return FilterArgs{}, fmt.Errorf("expected name=value, got %q", word)
			}
			last := names[len(names)-1]
			values[last] = append(values[last], word)
			continue
		}
		if name == "" {
			return FilterArgs{}, fmt.Errorf("parameter name is empty in %q", word)
		}
		if _, dup := values[name]; dup {
			return FilterArgs{}, fmt.Errorf("parameter %q given twice", name)
		}
		names = append(names, name)
		values[name] = []string{value}
	}

	for _, name := range names {
		fa.Parameters = append(fa.Parameters, model.NewParameter(name, strings.Join(values[name], " ")))
	}
	return fa, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
// what names the entity in error messages.
func ParseIDArg(args, what string) (model.ID, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return model.Unassigned, fmt.Errorf("%s ID is required", what)
	}
	return parseID(fields[0], what)
}

func parseID(s, what string) (model.ID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return model.Unassigned, fmt.Errorf("invalid %s ID %q", what, s)
	}
	return model.ID(id), nil
}

// ParseFeedURL validates the argument of /add.
func ParseFeedURL(args string) (*url.URL, error) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		return nil, fmt.Errorf("usage: /add <url>")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid feed URL %q", raw)
	}
	return u, nil
}
