package task

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Code is a machine-readable validation failure code.
type Code string

const (
	CodeMissing      Code = "MISSING"
	CodeTypeMismatch Code = "TYPE_MISMATCH"
	CodeOutOfRange   Code = "OUT_OF_RANGE"
	CodeEnumMismatch Code = "ENUM_MISMATCH"
)

// FieldError describes one validation failure, addressed by field path.
type FieldError struct {
	Path    string `json:"path"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Code)
}

// ValidationResult is the total outcome of Validate. Validation never
// panics and never returns a Go error; all failure is carried in Errors.
type ValidationResult struct {
	OK     bool
	Value  map[string]any
	Errors []FieldError
}

// Validate checks raw against shape and returns either the coerced value
// or field-level errors.
//
// Documented coercions:
//   - json.Number and integer values are coerced to float64 for number
//     fields;
//   - []any containing only strings is coerced to []string for
//     string-list fields.
//
// Unknown fields are passed through untouched; shapes constrain declared
// fields only. Errors are reported in field-name order so output is
// deterministic.
func Validate(shape Shape, raw map[string]any) ValidationResult {
	value := make(map[string]any, len(raw))
	for k, v := range raw {
		value[k] = v
	}

	var errs []FieldError

	names := make([]string, 0, len(shape))
	for name := range shape {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := shape[name]
		v, present := raw[name]
		if !present || v == nil {
			if spec.Required {
				errs = append(errs, FieldError{
					Path:    name,
					Code:    CodeMissing,
					Message: "required field is missing",
				})
			}
			continue
		}

		coerced, fieldErr := checkField(name, spec, v)
		if fieldErr != nil {
			errs = append(errs, *fieldErr)
			continue
		}
		value[name] = coerced
	}

	if len(errs) > 0 {
		return ValidationResult{OK: false, Errors: errs}
	}
	return ValidationResult{OK: true, Value: value}
}

// checkField validates a single present value against its spec, applying
// the documented coercions. Returns the (possibly coerced) value or an
// error, never both.
func checkField(name string, spec FieldSpec, v any) (any, *FieldError) {
	switch spec.Type {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(name, "string", v)
		}
		if len(spec.Enum) > 0 && !containsString(spec.Enum, s) {
			return nil, &FieldError{
				Path:    name,
				Code:    CodeEnumMismatch,
				Message: fmt.Sprintf("value %q is not one of the allowed values", s),
			}
		}
		return s, nil

	case FieldNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil, typeMismatch(name, "number", v)
		}
		if spec.Min != nil && f < *spec.Min {
			return nil, outOfRange(name, f)
		}
		if spec.Max != nil && f > *spec.Max {
			return nil, outOfRange(name, f)
		}
		return f, nil

	case FieldBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(name, "bool", v)
		}
		return b, nil

	case FieldStringList:
		switch list := v.(type) {
		case []string:
			return list, nil
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, typeMismatch(name, "string list", v)
				}
				out = append(out, s)
			}
			return out, nil
		default:
			return nil, typeMismatch(name, "string list", v)
		}

	default:
		// Unknown spec type is a registry bug; surface as type mismatch
		// rather than panicking so Validate stays total.
		return nil, typeMismatch(name, string(spec.Type), v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeMismatch(name, want string, got any) *FieldError {
	return &FieldError{
		Path:    name,
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("expected %s, got %T", want, got),
	}
}

func outOfRange(name string, got float64) *FieldError {
	return &FieldError{
		Path:    name,
		Code:    CodeOutOfRange,
		Message: fmt.Sprintf("value %g is out of range", got),
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
