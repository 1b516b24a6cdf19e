package action

import (
	"fmt"
	"regexp"
	"slices"
)

// FieldType constrains the JSON shape of one input parameter.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

// Field declares one input parameter of an action type.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Enum     []string  `json:"enum,omitempty"`
	Pattern  string    `json:"pattern,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
}

// Spec is the declared input schema of an action type. Validation runs
// before every invocation; a violation is a structured VALIDATION
// failure, never a panic or a bare error.
type Spec struct {
	Fields []Field `json:"fields"`
}

// Validate checks params against the spec, returning a VALIDATION
// *Error on the first violation.
func (s Spec) Validate(params map[string]any) *Error {
	for _, f := range s.Fields {
		v, present := params[f.Name]
		if !present || v == nil {
			if f.Required {
				return Errorf(KindValidation, "MISSING_FIELD", "required field %q is missing", f.Name)
			}
			continue
		}
		if err := f.validate(v); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) validate(v any) *Error {
	switch f.Type {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return f.typeError(v)
		}
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
			return Errorf(KindValidation, "INVALID_ENUM",
				"field %q must be one of %v, got %q", f.Name, f.Enum, s)
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return Errorf(KindValidation, "INVALID_PATTERN",
					"field %q has an invalid pattern: %v", f.Name, err)
			}
			if !re.MatchString(s) {
				return Errorf(KindValidation, "PATTERN_MISMATCH",
					"field %q value %q does not match %q", f.Name, s, f.Pattern)
			}
		}

	case FieldNumber:
		n, ok := asFloat(v)
		if !ok {
			return f.typeError(v)
		}
		if f.Min != nil && n < *f.Min {
			return Errorf(KindValidation, "BELOW_MIN",
				"field %q value %v is below minimum %v", f.Name, n, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return Errorf(KindValidation, "ABOVE_MAX",
				"field %q value %v is above maximum %v", f.Name, n, *f.Max)
		}

	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return f.typeError(v)
		}

	case FieldObject:
		if _, ok := v.(map[string]any); !ok {
			return f.typeError(v)
		}

	case FieldArray:
		if _, ok := v.([]any); !ok {
			return f.typeError(v)
		}
	}
	return nil
}

func (f Field) typeError(v any) *Error {
	return Errorf(KindValidation, "INVALID_TYPE",
		"field %q must be a %s, got %s", f.Name, f.Type, fmt.Sprintf("%T", v))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
