package resolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// Format is the encoding of an export document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is the export envelope
type Document struct {
	ExportedAt time.Time                   `json:"exported_at" yaml:"exported_at"`
	Count      int                         `json:"count" yaml:"count"`
	Decisions  []models.ResolutionDecision `json:"decisions" yaml:"decisions"`
}

// ImportResult counts what an import did
type ImportResult struct {
	Imported int `json:"imported"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"`
}

// Export writes every decision in the store to w
func Export(ctx context.Context, store Store, w io.Writer, format Format) (int, error) {
	decisions, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	doc := Document{
		ExportedAt: time.Now().UTC(),
		Count:      len(decisions),
		Decisions:  decisions,
	}

	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return 0, fmt.Errorf("failed to encode resolutions: %w", err)
		}
		if err := enc.Close(); err != nil {
			return 0, fmt.Errorf("failed to encode resolutions: %w", err)
		}
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return 0, fmt.Errorf("failed to encode resolutions: %w", err)
		}
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
	return len(decisions), nil
}

// Import reads an export document, or a bare key->action map, into the store.
// Existing keys are kept unless overwrite is set. The input is fully decoded
// and validated before anything is written.
func Import(ctx context.Context, store Store, r io.Reader, overwrite bool) (ImportResult, error) {
	var result ImportResult

	data, err := io.ReadAll(r)
	if err != nil {
		return result, fmt.Errorf("failed to read resolutions: %w", err)
	}
	decisions, err := decodeImport(data)
	if err != nil {
		return result, err
	}
	for _, d := range decisions {
		if err := validate(d); err != nil {
			return result, err
		}
	}

	for _, d := range decisions {
		if overwrite {
			existing, err := store.Get(ctx, d.Key)
			if err != nil {
				return result, err
			}
			if err := store.Replace(ctx, d); err != nil {
				return result, err
			}
			if existing != nil {
				result.Replaced++
			} else {
				result.Imported++
			}
			continue
		}
		err := store.Put(ctx, d)
		switch {
		case errors.Is(err, ErrDecisionExists):
			result.Skipped++
		case err != nil:
			return result, err
		default:
			result.Imported++
		}
	}
	return result, nil
}

func decodeImport(data []byte) ([]models.ResolutionDecision, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, &models.ValidationError{Message: fmt.Sprintf("malformed resolutions document: %v", err)}
		}
		if _, ok := probe["decisions"]; ok {
			var doc Document
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, &models.ValidationError{Message: fmt.Sprintf("malformed resolutions document: %v", err)}
			}
			return doc.Decisions, nil
		}
		all, err := decodeDecisionMap(trimmed)
		if err != nil {
			return nil, err
		}
		out := make([]models.ResolutionDecision, 0, len(all))
		for _, d := range all {
			out = append(out, d)
		}
		sortByKey(out)
		return out, nil
	}

	var doc Document
	if err := yaml.Unmarshal(trimmed, &doc); err == nil && len(doc.Decisions) > 0 {
		return doc.Decisions, nil
	}
	answers, err := decodeAnswers(trimmed)
	if err != nil {
		return nil, err
	}
	out := make([]models.ResolutionDecision, 0, len(answers))
	for _, key := range models.SortedKeys(answers) {
		d, err := legacyDecision(key, answers[key])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// decodeAnswers parses a YAML map of pair key to action
func decodeAnswers(data []byte) (map[string]string, error) {
	answers := map[string]string{}
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, &models.ValidationError{Message: fmt.Sprintf("malformed resolutions document: %v", err)}
	}
	return answers, nil
}
