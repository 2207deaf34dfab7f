// Package parameters parses "key=value,flag,..." configuration strings into
// Params and reads typed values from them.
package parameters

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Params holds configuration key/value pairs. A key given without "=" has an
// empty value.
type Params map[string]string

// Value restricts the types GetParamOr can parse.
type Value interface {
	bool | int | int64 | float32 | float64 | string
}

// NewFromConfigString creates Params from a configuration string such as
// "zoom,gauss_noise=20;60,rotation=false". Empty parts and surrounding spaces
// are ignored.
func NewFromConfigString(config string) Params {
	params := make(Params)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return params
}

// PopParamOr is like GetParamOr, but also deletes the key from params.
func PopParamOr[T Value](params Params, key string, defaultValue T) (T, error) {
	value, err := GetParamOr(params, key, defaultValue)
	if err != nil {
		return value, err
	}
	delete(params, key)
	return value, nil
}

// GetParamOr parses the value of key as T, or returns defaultValue if the key
// is absent.
//
// For bool types, a key without a value is interpreted as true.
func GetParamOr[T Value](params Params, key string, defaultValue T) (T, error) {
	var t T
	value, exists := params[key]
	if !exists {
		return defaultValue, nil
	}
	toT := func(v any) T { return v.(T) }
	switch any(defaultValue).(type) {
	case string:
		return toT(value), nil
	case bool:
		switch strings.ToLower(value) {
		case "", "true", "1":
			return toT(true), nil
		case "false", "0":
			return toT(false), nil
		}
		return t, errors.Errorf("failed to parse configuration %s=%q to bool", key, value)
	}
	if value == "" {
		return defaultValue, nil
	}
	switch any(defaultValue).(type) {
	case int:
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to int", key, value)
		}
		return toT(parsed), nil
	case int64:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to int64", key, value)
		}
		return toT(parsed), nil
	case float32:
		parsed, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to float", key, value)
		}
		return toT(float32(parsed)), nil
	case float64:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to float", key, value)
		}
		return toT(parsed), nil
	}
	return defaultValue, nil
}

// PopFloatsOr pops a ';' separated list of floats, e.g. "20;60". A key without
// a value returns defaultValue, as does an absent key.
func PopFloatsOr(params Params, key string, defaultValue []float64) ([]float64, bool, error) {
	value, exists := params[key]
	if !exists {
		return defaultValue, false, nil
	}
	delete(params, key)
	if value == "" || strings.ToLower(value) == "true" {
		return defaultValue, true, nil
	}
	if strings.ToLower(value) == "false" {
		return nil, false, nil
	}
	parts := strings.Split(value, ";")
	out := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false, errors.Wrapf(err, "failed to parse configuration %s=%q to a float list", key, value)
		}
		out[i] = f
	}
	return out, true, nil
}

// CheckEmpty returns an error naming every key left in params, so callers can
// reject unknown configuration after popping the keys they understand.
func CheckEmpty(params Params) error {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return errors.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))
}
