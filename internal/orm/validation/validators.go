package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
)

// Rule checks one value. present is false when the key is absent from the data.
type Rule interface {
	Check(value interface{}, present bool) error
}

// RuleFunc adapts a function to Rule
type RuleFunc func(value interface{}, present bool) error

// Check implements Rule
func (f RuleFunc) Check(value interface{}, present bool) error {
	return f(value, present)
}

// RuleFactory builds a rule from the parameter after the colon in "name:param"
type RuleFactory func(param string) (Rule, error)

func builtinRules() map[string]RuleFactory {
	return map[string]RuleFactory{
		"required": func(string) (Rule, error) { return RuleFunc(required), nil },
		"string":   func(string) (Rule, error) { return RuleFunc(isString), nil },
		"integer":  func(string) (Rule, error) { return RuleFunc(isInteger), nil },
		"numeric":  func(string) (Rule, error) { return RuleFunc(isNumeric), nil },
		"boolean":  func(string) (Rule, error) { return RuleFunc(isBoolean), nil },
		"email":    func(string) (Rule, error) { return RuleFunc(isEmail), nil },
		"url":      func(string) (Rule, error) { return RuleFunc(isURL), nil },
		"min":      newMinRule,
		"max":      newMaxRule,
		"in":       newInRule,
		"regex":    newRegexRule,
	}
}

func required(value interface{}, present bool) error {
	if !present || value == nil {
		return fmt.Errorf("is required")
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func isString(value interface{}, present bool) error {
	if value == nil {
		return nil
	}
	if _, ok := value.(string); !ok {
		return fmt.Errorf("must be a string")
	}
	return nil
}

func isInteger(value interface{}, present bool) error {
	if value == nil {
		return nil
	}
	if _, ok := toInt64(value); !ok {
		return fmt.Errorf("must be an integer")
	}
	return nil
}

func isNumeric(value interface{}, present bool) error {
	if value == nil {
		return nil
	}
	if _, ok := toFloat64(value); !ok {
		return fmt.Errorf("must be numeric")
	}
	return nil
}

func isBoolean(value interface{}, present bool) error {
	if value == nil {
		return nil
	}
	if _, err := cast.ToBoolE(value); err != nil {
		return fmt.Errorf("must be a boolean")
	}
	return nil
}

func isEmail(value interface{}, present bool) error {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a valid email address")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("must be a valid email address")
	}
	return nil
}

func isURL(value interface{}, present bool) error {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("must be a valid URL")
	}
	u, err := url.ParseRequestURI(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a valid URL")
	}
	return nil
}

// size measures strings by rune count and numbers by value
func size(value interface{}) (float64, bool) {
	if s, ok := value.(string); ok {
		return float64(utf8.RuneCountInString(s)), true
	}
	return toFloat64(value)
}

func newMinRule(param string) (Rule, error) {
	limit, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return nil, fmt.Errorf("min requires a number, got %q", param)
	}
	return RuleFunc(func(value interface{}, present bool) error {
		if value == nil {
			return nil
		}
		n, ok := size(value)
		if !ok {
			return fmt.Errorf("must be a number or string")
		}
		if n < limit {
			if _, isStr := value.(string); isStr {
				return fmt.Errorf("must be at least %s characters", param)
			}
			return fmt.Errorf("must be at least %s", param)
		}
		return nil
	}), nil
}

func newMaxRule(param string) (Rule, error) {
	limit, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return nil, fmt.Errorf("max requires a number, got %q", param)
	}
	return RuleFunc(func(value interface{}, present bool) error {
		if value == nil {
			return nil
		}
		n, ok := size(value)
		if !ok {
			return fmt.Errorf("must be a number or string")
		}
		if n > limit {
			if _, isStr := value.(string); isStr {
				return fmt.Errorf("must be at most %s characters", param)
			}
			return fmt.Errorf("must be at most %s", param)
		}
		return nil
	}), nil
}

func newInRule(param string) (Rule, error) {
	allowed := strings.Split(param, ",")
	return RuleFunc(func(value interface{}, present bool) error {
		if value == nil {
			return nil
		}
		s, err := cast.ToStringE(value)
		if err != nil {
			return fmt.Errorf("must be one of %s", param)
		}
		for _, a := range allowed {
			if strings.TrimSpace(a) == s {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", param)
	}), nil
}

func newRegexRule(param string) (Rule, error) {
	re, err := regexp.Compile(param)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", param, err)
	}
	return RuleFunc(func(value interface{}, present bool) error {
		if value == nil {
			return nil
		}
		s, ok := value.(string)
		if !ok || !re.MatchString(s) {
			return fmt.Errorf("has an invalid format")
		}
		return nil
	}), nil
}

// toInt64 converts integral values to int64
func toInt64(val interface{}) (int64, bool) {
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// toFloat64 converts numeric values to float64
func toFloat64(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		if n, ok := toInt64(val); ok {
			return float64(n), true
		}
		return 0, false
	}
}
