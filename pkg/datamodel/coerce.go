package datamodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Coerce converts a decoded JSON or query-string value into the Go value stored for the attribute.
//
// nil is returned unchanged. Enumerations and maximum lengths are checked.
func (a Attribute) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if n, ok := v.(json.Number); ok && a.Type != TypeInteger && a.Type != TypeJSON {
		v = fromNumber(n, a.Type)
	}

	switch a.Type {
	case TypeString, TypeText:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("expected a string: %v", err)
		}
		if a.MaxLength > 0 && utf8.RuneCountInString(s) > a.MaxLength {
			return nil, fmt.Errorf("must be at most %d characters long", a.MaxLength)
		}
		if len(a.Enum) > 0 && !slices.Contains(a.Enum, s) {
			return nil, fmt.Errorf("must be one of %v", a.Enum)
		}
		return s, nil

	case TypeInteger:
		return toInt64(v)

	case TypeNumber:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("expected a number: %v", err)
		}
		return f, nil

	case TypeBoolean:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean: %v", err)
		}
		return b, nil

	case TypeDateTime:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, fmt.Errorf("expected a date-time: %v", err)
		}
		return t.UTC(), nil

	case TypeDate:
		t, err := cast.ToTimeE(v)
		if err != nil {
			return nil, fmt.Errorf("expected a date: %v", err)
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil

	case TypeUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id, nil
		case [16]byte:
			return uuid.UUID(id), nil
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("expected a uuid: %v", err)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("expected a uuid: %v", err)
		}
		return id, nil

	case TypeJSON:
		// pgx writes strings and byte slices to jsonb verbatim: bind the encoded document.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("expected a JSON value: %v", err)
		}
		return json.RawMessage(data), nil

	default:
		return nil, fmt.Errorf("unknown attribute type %q", a.Type)
	}
}

// toInt64 converts v to an int64. Strings are read in base 10 and floats must be whole and in range.
func toInt64(v any) (int64, error) {
	var f float64
	switch n := v.(type) {
	case string:
		return parseInt(n)
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return i, nil
		}
		// Exponent forms such as 1e3 are integers too.
		ff, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", n.String())
		}
		f = ff
	case float64:
		f = n
	case float32:
		f = float64(n)
	case uint:
		return fromUint64(uint64(n))
	case uint64:
		return fromUint64(n)
	default:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("expected an integer: %v", err)
		}
		return i, nil
	}

	if f != math.Trunc(f) {
		return 0, fmt.Errorf("expected an integer, got %v", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("integer %v is out of range", f)
	}
	return int64(f), nil
}

func parseInt(s string) (int64, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("integer %s is out of range", s)
	} else if err != nil {
		return 0, fmt.Errorf("expected an integer, got %q", s)
	}
	return i, nil
}

func fromUint64(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("integer %d is out of range", u)
	}
	return int64(u), nil
}

// fromNumber converts a JSON number decoded as text for the non-integer attribute types.
func fromNumber(n json.Number, t AttributeType) any {
	if t == TypeString || t == TypeText {
		return n.String()
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	return n.String()
}
