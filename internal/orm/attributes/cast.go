package attributes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Kind identifies a cast transform
type Kind int

const (
	KindNone Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindJSON
	KindString
	KindDatetime
	KindDate
	KindTimestamp
	KindEnum
)

// String returns the cast name
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindJSON:
		return "json"
	case KindString:
		return "string"
	case KindDatetime:
		return "datetime"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindEnum:
		return "enum"
	default:
		return "none"
	}
}

// Cast describes how one attribute converts between its stored and
// user-facing forms
type Cast struct {
	Kind Kind
	Enum *Enum
}

// Predefined casts
var (
	Integer   = Cast{Kind: KindInteger}
	Float     = Cast{Kind: KindFloat}
	Boolean   = Cast{Kind: KindBoolean}
	JSON      = Cast{Kind: KindJSON}
	String    = Cast{Kind: KindString}
	Datetime  = Cast{Kind: KindDatetime}
	Date      = Cast{Kind: KindDate}
	Timestamp = Cast{Kind: KindTimestamp}
)

// EnumOf returns an enum cast over e
func EnumOf(e *Enum) Cast {
	return Cast{Kind: KindEnum, Enum: e}
}

// EnumCase is one variant of an enum. A nil Value stores the case by name.
type EnumCase struct {
	Name  string
	Value interface{}
}

// Stored returns the representation written to the store
func (c EnumCase) Stored() interface{} {
	if c.Value != nil {
		return c.Value
	}
	return c.Name
}

// Enum is a closed set of named variants
type Enum struct {
	Name  string
	Cases []EnumCase
}

// NewEnum builds a name-only enum
func NewEnum(name string, cases ...string) *Enum {
	e := &Enum{Name: name}
	for _, c := range cases {
		e.Cases = append(e.Cases, EnumCase{Name: c})
	}
	return e
}

// Lookup finds the case whose stored form (or name) equals raw
func (e *Enum) Lookup(raw interface{}) (EnumCase, bool) {
	if c, ok := raw.(EnumCase); ok {
		raw = c.Stored()
	}
	for _, c := range e.Cases {
		if valuesEqual(c.Stored(), raw) {
			return c, true
		}
	}
	if s, ok := raw.(string); ok {
		for _, c := range e.Cases {
			if c.Name == s {
				return c, true
			}
		}
	}
	return EnumCase{}, false
}

// Options are the process-wide settings casts depend on
type Options struct {
	Location   *time.Location
	DateFormat string
	Naming     Naming
}

// DefaultOptions returns UTC, RFC3339 and no naming transform
func DefaultOptions() Options {
	return Options{Location: time.UTC, DateFormat: time.RFC3339, Naming: NamingNone}
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) format() string {
	if o.DateFormat == "" {
		return time.RFC3339
	}
	return o.DateFormat
}

// FormatTime renders t in the configured timezone and layout
func (o Options) FormatTime(t time.Time) string {
	return t.In(o.location()).Format(o.format())
}

// ForRead converts a raw stored value to its user-facing form
func (o Options) ForRead(c Cast, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch c.Kind {
	case KindInteger:
		return cast.ToInt64E(raw)
	case KindFloat:
		return cast.ToFloat64E(raw)
	case KindBoolean:
		return cast.ToBoolE(raw)
	case KindString:
		return cast.ToStringE(raw)
	case KindJSON:
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case []byte:
			s = string(v)
		default:
			return raw, nil
		}
		var out interface{}
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("invalid json value: %w", err)
		}
		return out, nil
	case KindDatetime, KindTimestamp:
		return o.toTime(raw)
	case KindDate:
		t, err := o.toTime(raw)
		if err != nil {
			return nil, err
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), nil
	case KindEnum:
		if c.Enum == nil {
			return nil, fmt.Errorf("enum cast without enum definition")
		}
		ec, ok := c.Enum.Lookup(raw)
		if !ok {
			return nil, fmt.Errorf("%v is not a valid %s", raw, c.Enum.Name)
		}
		return ec, nil
	default:
		return raw, nil
	}
}

// ForStorage converts a user-facing value to its raw stored form
func (o Options) ForStorage(c Cast, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch c.Kind {
	case KindInteger:
		return cast.ToInt64E(value)
	case KindFloat:
		return cast.ToFloat64E(value)
	case KindBoolean:
		return cast.ToBoolE(value)
	case KindString:
		return cast.ToStringE(value)
	case KindJSON:
		if s, ok := value.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode json value: %w", err)
		}
		return string(b), nil
	case KindDatetime, KindTimestamp:
		t, err := o.toTime(value)
		if err != nil {
			return nil, err
		}
		return o.FormatTime(t), nil
	case KindDate:
		t, err := o.toTime(value)
		if err != nil {
			return nil, err
		}
		return t.In(o.location()).Format("2006-01-02"), nil
	case KindEnum:
		if c.Enum == nil {
			return nil, fmt.Errorf("enum cast without enum definition")
		}
		ec, ok := c.Enum.Lookup(value)
		if !ok {
			return nil, fmt.Errorf("%v is not a valid %s", value, c.Enum.Name)
		}
		return ec.Stored(), nil
	default:
		return value, nil
	}
}

func (o Options) toTime(raw interface{}) (time.Time, error) {
	loc := o.location()
	switch v := raw.(type) {
	case time.Time:
		return v.In(loc), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return v.In(loc), nil
	case string:
		if t, err := time.ParseInLocation(o.format(), v, loc); err == nil {
			return t.In(loc), nil
		}
	case []byte:
		return o.toTime(string(v))
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		secs, err := cast.ToInt64E(v)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, 0).In(loc), nil
	}

	t, err := cast.ToTimeInDefaultLocationE(raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot convert %v to time: %w", raw, err)
	}
	return t.In(loc), nil
}
