package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// Format is a batch document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension, defaulting to JSON
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// LoadFile reads and decodes a batch document
func LoadFile(path string) (*models.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()
	return Decode(f, FormatFor(path))
}

// Decode parses a batch document. A document that cannot be parsed at all is
// returned as a plain error; values of the wrong type inside an otherwise
// readable document come back as models.ValidationErrors.
func Decode(r io.Reader, format Format) (*models.Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("batch document is empty")
	}

	var batch models.Batch
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &batch)
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			verrs := make(models.ValidationErrors, 0, len(typeErr.Errors))
			for _, msg := range typeErr.Errors {
				verrs = append(verrs, models.ValidationError{Message: msg})
			}
			return &batch, verrs
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&batch)
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &batch, models.ValidationErrors{{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("must be %s, got %s", typeErr.Type, typeErr.Value),
			}}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("malformed batch document: %w", err)
	}
	return &batch, nil
}
