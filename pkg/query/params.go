package query

import (
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/cast"
)

// ParseValues builds a series from query string parameters.
//
// Supported parameters are fields=a,b, include=rel1,rel2, sort=-a,b, page, pageSize,
// filter[field]=value and filter[field][op]=value. Other parameters are ignored.
// The returned series has no model set.
func ParseValues(values url.Values) (Series, error) {
	var s Series

	s.Fields = splitList(values.Get("fields"))
	for _, rel := range splitList(values.Get("include")) {
		s.Joins = append(s.Joins, Join{Relationship: rel, Type: JoinLeft})
	}
	for _, f := range splitList(values.Get("sort")) {
		field, desc := strings.CutPrefix(f, "-")
		if field == "" {
			return Series{}, invalidf("empty sort field")
		}
		s.Sort = append(s.Sort, Sort{Field: field, Desc: desc})
	}

	var err error
	if s.Page, err = intParam(values, "page"); err != nil {
		return Series{}, err
	}
	if s.PageSize, err = intParam(values, "pageSize"); err != nil {
		return Series{}, err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.HasPrefix(k, "filter[") {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		field, op, err := filterKey(k)
		if err != nil {
			return Series{}, err
		}
		for _, v := range values[k] {
			s.Filters = append(s.Filters, Filter{Field: field, Op: op, Value: v})
		}
	}

	return s, nil
}

// filterKey splits "filter[field]" or "filter[field][op]".
func filterKey(k string) (field string, op Op, err error) {
	rest := strings.TrimPrefix(k, "filter")
	var parts []string
	for rest != "" {
		if rest[0] != '[' {
			return "", "", invalidf("malformed filter parameter %q", k)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", "", invalidf("malformed filter parameter %q", k)
		}
		parts = append(parts, rest[1:end])
		rest = rest[end+1:]
	}

	switch len(parts) {
	case 1:
		field, op = parts[0], OpEq
	case 2:
		field, op = parts[0], Op(parts[1])
	default:
		return "", "", invalidf("malformed filter parameter %q", k)
	}
	if field == "" {
		return "", "", invalidf("malformed filter parameter %q", k)
	}
	return field, op, nil
}

func intParam(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil || n < 0 {
		return 0, invalidf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
