// Package tmpl implements the Input Validator & Template Renderer
// (component E, spec §4.4): type-checked user input coercion, and
// single-pass `{var}` template substitution with brace escaping.
package tmpl

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/outfit-dev/outfit/internal/outfiterr"
	"github.com/outfit-dev/outfit/internal/recipe"
)

// Inputs is the caller-supplied {input_id -> typed_value} binding (§3).
type Inputs map[string]interface{}

// Validate coerces and validates every input a recipe declares, applying
// declared defaults for missing answers, and returns the string
// representation each validated value renders as in templates.
func Validate(inputs []recipe.Input, answers Inputs) (map[string]string, error) {
	out := make(map[string]string, len(inputs))
	for _, in := range inputs {
		raw, ok := answers[in.ID]
		if !ok {
			raw = in.Default
		}
		val, err := validateOne(in, raw)
		if err != nil {
			return nil, err
		}
		out[in.ID] = val
	}
	return out, nil
}

func validateOne(in recipe.Input, raw interface{}) (string, error) {
	switch in.Type {
	case recipe.InputSelect:
		return validateSelect(in, raw)
	case recipe.InputNumber:
		return validateNumber(in, raw)
	case recipe.InputText:
		return validateText(in, raw)
	case recipe.InputPath:
		return validatePath(in, raw)
	case recipe.InputBoolean:
		return validateBoolean(in, raw)
	default:
		return "", outfiterr.New(outfiterr.KindTemplateUnresolved, fmt.Sprintf("input %q has unknown type %q", in.ID, in.Type))
	}
}

func validateSelect(in recipe.Input, raw interface{}) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", invalidInput(in.ID, "expected a string value")
	}
	options, _ := in.Validation["options"].([]interface{})
	if len(options) == 0 {
		return s, nil
	}
	for _, o := range options {
		if fmt.Sprintf("%v", o) == s {
			return s, nil
		}
	}
	return "", invalidInput(in.ID, fmt.Sprintf("%q is not one of the allowed options", s))
}

func validateNumber(in recipe.Input, raw interface{}) (string, error) {
	f, err := toFloat(raw)
	if err != nil {
		return "", invalidInput(in.ID, "expected a number")
	}
	if integer, _ := in.Validation["integer"].(bool); integer && f != float64(int64(f)) {
		return "", invalidInput(in.ID, "expected an integer")
	}
	if min, ok := in.Validation["min"]; ok {
		minF, _ := toFloat(min)
		if f < minF {
			return "", invalidInput(in.ID, fmt.Sprintf("value %v below minimum %v", f, minF))
		}
	}
	if max, ok := in.Validation["max"]; ok {
		maxF, _ := toFloat(max)
		if f > maxF {
			return "", invalidInput(in.ID, fmt.Sprintf("value %v above maximum %v", f, maxF))
		}
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

func validateText(in recipe.Input, raw interface{}) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", invalidInput(in.ID, "expected a string value")
	}
	if pattern, ok := in.Validation["regex"].(string); ok && pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return "", outfiterr.New(outfiterr.KindTemplateUnresolved, fmt.Sprintf("input %q has invalid validation regex", in.ID))
		}
		if !re.MatchString(s) {
			return "", invalidInput(in.ID, fmt.Sprintf("%q does not match required pattern", s))
		}
	}
	return s, nil
}

func validatePath(in recipe.Input, raw interface{}) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", invalidInput(in.ID, "expected a string value")
	}
	if !filepath.IsAbs(s) {
		return "", invalidInput(in.ID, fmt.Sprintf("%q must be an absolute path", s))
	}
	if mustExist, _ := in.Validation["must_exist"].(bool); mustExist {
		if _, err := os.Stat(s); err != nil {
			return "", invalidInput(in.ID, fmt.Sprintf("%q does not exist", s))
		}
	}
	return s, nil
}

func validateBoolean(in recipe.Input, raw interface{}) (string, error) {
	switch v := raw.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return "", invalidInput(in.ID, "expected a boolean")
		}
		return strconv.FormatBool(b), nil
	default:
		return "", invalidInput(in.ID, "expected a boolean")
	}
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func invalidInput(id, reason string) error {
	return outfiterr.New(outfiterr.KindTemplateUnresolved, fmt.Sprintf("input %q invalid: %s", id, reason)).
		WithDetail("input_id", id)
}
