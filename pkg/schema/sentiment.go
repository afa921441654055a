package schema

import (
	"fmt"

	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/normalizers"
)

// normalizeSentimentProperty rewrites props["sentiment"] in canonical form.
// A list of sentiments is accepted and each element normalized.
func normalizeSentimentProperty(prefix string, props map[string]any) *models.ValidationError {
	raw, ok := props["sentiment"]
	if !ok || raw == nil {
		return nil
	}
	field := prefix + ".sentiment"
	invalid := func(v any) *models.ValidationError {
		return &models.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("unknown sentiment %v (must be one of Heroic, Villainous, Neutral, Complex)", v),
		}
	}

	switch v := raw.(type) {
	case string:
		s, ok := normalizers.NormalizeSentiment(v)
		if !ok {
			return invalid(v)
		}
		props["sentiment"] = string(s)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			str, _ := item.(string)
			s, ok := normalizers.NormalizeSentiment(str)
			if !ok {
				return invalid(item)
			}
			out = append(out, string(s))
		}
		props["sentiment"] = out
	default:
		return invalid(v)
	}
	return nil
}
