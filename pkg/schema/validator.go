// Package schema validates curated batches at the import boundary.
// Validation is fail-closed: every violation in the batch is reported before anything is written.
package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

var qidRegex = regexp.MustCompile(`^Q\d+$`)

// IsQID reports whether s is a well-formed authoritative identifier
func IsQID(s string) bool {
	return qidRegex.MatchString(s)
}

// Validator checks batches structurally. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the batch rules on a fresh go-playground validator
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v, "qid", func(fl validator.FieldLevel) bool {
		return IsQID(fl.Field().String())
	})
	mustRegister(v, "entity_kind", func(fl validator.FieldLevel) bool {
		return models.EntityKind(fl.Field().String()).IsValid()
	})
	mustRegister(v, "rel_type", func(fl validator.FieldLevel) bool {
		for _, t := range models.ImportRelationshipTypes() {
			if string(t) == fl.Field().String() {
				return true
			}
		}
		return false
	})

	v.RegisterStructValidation(figureRules, models.FigureInput{})

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register %s validation: %v", tag, err))
	}
}

// figureRules covers the cross-field constraints tags cannot express
func figureRules(sl validator.StructLevel) {
	f := sl.Current().Interface().(models.FigureInput)
	if strings.TrimSpace(f.CanonicalID) == "" && strings.TrimSpace(f.WikidataID) == "" {
		sl.ReportError(f.CanonicalID, "canonical_id", "CanonicalID", "canonical_or_wikidata", "")
	}
	if f.BirthYear != nil && f.DeathYear != nil && *f.BirthYear >= *f.DeathYear {
		sl.ReportError(f.DeathYear, "death_year", "DeathYear", "after_birth", "")
	}
}

// Report is the outcome of validating one batch
type Report struct {
	Errors   models.ValidationErrors `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
}

// Err returns the violations as an error, or nil when the batch is valid
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors
}

// ValidateBatch checks the whole batch and normalizes it in place: sentiment
// values are canonicalized and property numbers are converted to graph types.
func (v *Validator) ValidateBatch(b *models.Batch) Report {
	var report Report

	if err := v.validate.Struct(b); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			report.Errors = append(report.Errors, models.ValidationError{Message: err.Error()})
			return report
		}
		for _, fe := range verrs {
			report.Errors = append(report.Errors, translate(fe))
		}
	}

	if len(b.Figures) == 0 && len(b.Records) == 0 && len(b.Works) == 0 {
		report.Errors = append(report.Errors, models.ValidationError{Message: "must provide at least 'figures' or 'works' array"})
	}

	for i := range b.Figures {
		report.Errors = append(report.Errors, CheckProperties(fmt.Sprintf("figures[%d].properties", i), b.Figures[i].Properties, FigureProperties)...)
	}
	for i := range b.Records {
		report.Errors = append(report.Errors, CheckProperties(fmt.Sprintf("records[%d].properties", i), b.Records[i].Properties, FigureProperties)...)
	}
	for i := range b.Works {
		if strings.TrimSpace(b.Works[i].WikidataID) == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("works[%d]: no wikidata_id provided, will attempt identity search", i))
		}
		report.Errors = append(report.Errors, CheckProperties(fmt.Sprintf("works[%d].properties", i), b.Works[i].Properties, WorkProperties)...)
	}
	for i := range b.Relationships {
		prefix := fmt.Sprintf("relationships[%d].properties", i)
		if err := normalizeSentimentProperty(prefix, b.Relationships[i].Properties); err != nil {
			report.Errors = append(report.Errors, *err)
		}
		report.Errors = append(report.Errors, CheckProperties(prefix, b.Relationships[i].Properties, RelationshipProperties)...)
	}

	if !isValidDate(b.Metadata.Date) && strings.TrimSpace(b.Metadata.Date) != "" {
		report.Warnings = append(report.Warnings, fmt.Sprintf("metadata.date %q is not YYYY-MM-DD", b.Metadata.Date))
	}
	return report
}

// translate renders a validator failure with an indexed path such as figures[2].name
func translate(fe validator.FieldError) models.ValidationError {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "canonical_or_wikidata":
		msg = "must provide either 'canonical_id' or 'wikidata_id'"
	case "after_birth":
		msg = "must be after birth_year"
	case "qid":
		msg = fmt.Sprintf("has invalid format: %v (must be Q followed by digits)", fe.Value())
	case "entity_kind":
		msg = fmt.Sprintf("must be one of: %s", joinKinds())
	case "rel_type":
		msg = fmt.Sprintf("must be one of: %s", joinRelTypes())
	default:
		msg = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return models.ValidationError{Field: field, Message: msg}
}

func joinKinds() string {
	out := make([]string, 0, 3)
	for _, k := range models.Kinds() {
		out = append(out, string(k))
	}
	return strings.Join(out, ", ")
}

func joinRelTypes() string {
	out := make([]string, 0, 6)
	for _, t := range models.ImportRelationshipTypes() {
		out = append(out, string(t))
	}
	return strings.Join(out, ", ")
}
