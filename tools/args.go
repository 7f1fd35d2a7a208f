package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/m4xw311/nima/errors"
)

// Model output is decoded from JSON, so numbers usually arrive as float64.
// Strings holding numbers are accepted too.

func floatArg(args map[string]interface{}, name string) (float64, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, errors.New("missing '%s' argument", name)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, errors.New("invalid '%s' argument: expected a number, got %v", name, v)
	}
	return f, nil
}

func intArg(args map[string]interface{}, name string) (int, error) {
	f, err := floatArg(args, name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, errors.New("invalid '%s' argument: expected an integer, got %v", name, f)
	}
	return int(f), nil
}

func optionalIntArg(args map[string]interface{}, name string, def int) (int, error) {
	if v, ok := args[name]; !ok || v == nil {
		return def, nil
	}
	return intArg(args, name)
}

func stringArg(args map[string]interface{}, name string) (string, error) {
	s, ok := args[name].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", errors.New("missing or invalid '%s' argument", name)
	}
	return s, nil
}

func optionalStringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.New("invalid '%s' argument: expected a string", name)
	}
	return s, nil
}

// optionalFloatsArg reads a list of numbers, nil when the argument is absent.
func optionalFloatsArg(args map[string]interface{}, name string) ([]float64, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.New("invalid '%s' argument: expected a list of numbers", name)
	}
	out := make([]float64, 0, len(list))
	for _, item := range list {
		f, ok := toFloat(item)
		if !ok {
			return nil, errors.New("invalid '%s' argument: %v is not a number", name, item)
		}
		out = append(out, f)
	}
	return out, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
