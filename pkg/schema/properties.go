package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// PropertyDefinition constrains one key of a descriptive property bag
type PropertyDefinition struct {
	Type   string   `json:"type"`             // string, integer, number, boolean, array
	Format string   `json:"format,omitempty"` // date, uri
	Enum   []string `json:"enum,omitempty"`
}

// Well-known properties per record type. Keys not listed are accepted as long
// as their values can be stored on a graph node.
var (
	FigureProperties = map[string]PropertyDefinition{
		"title":       {Type: "string"},
		"description": {Type: "string"},
		"historicity": {Type: "string", Enum: []string{"Historical", "Legendary", "Disputed", "Fictional"}},
		"wikipedia":   {Type: "string", Format: "uri"},
		"aliases":     {Type: "array"},
	}
	WorkProperties = map[string]PropertyDefinition{
		"creator":      {Type: "string"},
		"publisher":    {Type: "string"},
		"genre":        {Type: "string"},
		"description":  {Type: "string"},
		"published_on": {Type: "string", Format: "date"},
		"setting_year": {Type: "integer"},
		"url":          {Type: "string", Format: "uri"},
	}
	RelationshipProperties = map[string]PropertyDefinition{
		"sentiment_tags": {Type: "array"},
		"role":           {Type: "string"},
		"role_type":      {Type: "string"},
		"is_protagonist": {Type: "boolean"},
		"notes":          {Type: "string"},
		"start_year":     {Type: "integer"},
		"end_year":       {Type: "integer"},
	}
)

// CheckProperties validates props against defs and converts numbers to the
// types the graph driver stores (int64, float64) in place.
func CheckProperties(prefix string, props map[string]any, defs map[string]PropertyDefinition) models.ValidationErrors {
	var errs models.ValidationErrors
	for _, key := range models.SortedKeys(props) {
		field := prefix + "." + key
		value := NormalizeValue(props[key])
		props[key] = value
		if value == nil {
			continue
		}

		if !isStorable(value) {
			errs = append(errs, models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s values cannot be stored as a graph property", getTypeName(value)),
			})
			continue
		}

		def, ok := defs[key]
		if !ok {
			continue
		}
		errs = append(errs, validateField(field, value, def)...)
	}
	return errs
}

// validateField validates a single property value against its definition
func validateField(field string, value any, def PropertyDefinition) []models.ValidationError {
	if !isValidType(value, def.Type) {
		return []models.ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("expected type %s, got %s", def.Type, getTypeName(value)),
		}}
	}

	var errs []models.ValidationError
	if def.Format != "" {
		if err := validateFormat(value, def.Format); err != nil {
			errs = append(errs, models.ValidationError{Field: field, Message: err.Error()})
		}
	}
	if len(def.Enum) > 0 {
		if s, ok := value.(string); ok && !containsFold(def.Enum, s) {
			errs = append(errs, models.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(def.Enum, ", ")),
			})
		}
	}
	return errs
}

// NormalizeValue converts decoded JSON/YAML numbers to int64 or float64 and
// list elements likewise. Whole floats become integers.
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return NormalizeValue(float64(v))
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = NormalizeValue(v[i])
		}
		return out
	}
	return value
}

// isStorable rejects nested objects and lists of lists, which graph properties cannot hold
func isStorable(value any) bool {
	switch v := value.(type) {
	case map[string]any:
		return false
	case []any:
		for _, item := range v {
			switch item.(type) {
			case map[string]any, []any:
				return false
			}
		}
	}
	return true
}

// isValidType checks if a value matches the expected property type
func isValidType(value any, expectedType string) bool {
	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int64:
			return true
		}
		return false
	case "integer":
		_, ok := value.(int64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		rv := reflect.ValueOf(value)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	default:
		return true
	}
}

// getTypeName returns the JSON type name for a Go value
func getTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return "array"
		}
		return fmt.Sprintf("%T", value)
	}
}

// validateFormat validates a string against a format constraint
func validateFormat(value any, format string) error {
	str, ok := value.(string)
	if !ok {
		return nil
	}

	switch format {
	case "date":
		if !isValidDate(str) {
			return fmt.Errorf("invalid date format (expected YYYY-MM-DD)")
		}
	case "uri", "url":
		if !uriRegex.MatchString(str) {
			return fmt.Errorf("invalid URI format")
		}
	}
	return nil
}

var (
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	uriRegex  = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
)

func isValidDate(s string) bool {
	return dateRegex.MatchString(s)
}

func containsFold(options []string, s string) bool {
	for _, o := range options {
		if strings.EqualFold(o, s) {
			return true
		}
	}
	return false
}
