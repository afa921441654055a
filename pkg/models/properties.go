package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AgentLabel is the node label of the curator/tool recorded by CREATED_BY provenance
const AgentLabel = "Agent"

// AgentKind lets an Agent node be used as a relationship endpoint
const AgentKind EntityKind = AgentLabel

// RetiredLabel marks a tombstoned duplicate
const RetiredLabel = "Deleted"

const (
	PropertyCreatedAt  = "created_at"
	PropertyUpdatedAt  = "updated_at"
	PropertyBatchID    = "batch_id"
	PropertySource     = "source"
	PropertyMergedInto = "merged_into"
	PropertyRetiredAt  = "retired_at"
)

// IDPropertyFor returns the property that identifies nodes of kind; Agent nodes are keyed by name
func IDPropertyFor(kind EntityKind) string {
	if kind == AgentKind {
		return "name"
	}
	if s, ok := SchemaFor(kind); ok {
		return s.IDProperty
	}
	return "id"
}

// structuralProperties are mapped onto Entity fields and excluded from the descriptive bag
func structuralProperties(s KindSchema) map[string]bool {
	props := map[string]bool{
		s.IDProperty:            true,
		s.NameProperty:          true,
		AuthoritativeIDProperty: true,
		AlternateIDsProperty:    true,
		PropertyCreatedAt:       true,
		PropertyUpdatedAt:       true,
		"provisional":           true,
	}
	for _, p := range []string{s.YearProperty, s.EndYearProperty, s.CategoryProperty} {
		if p != "" {
			props[p] = true
		}
	}
	return props
}

// EntityProperties flattens an entity into the node property map for its kind.
// Nil attributes are omitted.
func EntityProperties(e Entity) map[string]any {
	s, ok := SchemaFor(e.Kind)
	if !ok {
		return map[string]any{}
	}

	props := make(map[string]any, len(e.Properties)+8)
	for k, v := range e.Properties {
		if !IsEmptyValue(v) {
			props[k] = v
		}
	}
	props[s.IDProperty] = e.LocalID
	props[s.NameProperty] = e.Name
	props["provisional"] = e.AuthoritativeID == ""
	if e.AuthoritativeID != "" {
		props[AuthoritativeIDProperty] = e.AuthoritativeID
	}
	if len(e.AlternateIDs) > 0 {
		props[AlternateIDsProperty] = append([]string(nil), e.AlternateIDs...)
	}
	if s.YearProperty != "" && e.Year != nil {
		props[s.YearProperty] = int64(*e.Year)
	}
	if s.EndYearProperty != "" && e.EndYear != nil {
		props[s.EndYearProperty] = int64(*e.EndYear)
	}
	if s.CategoryProperty != "" && strings.TrimSpace(e.Category) != "" {
		props[s.CategoryProperty] = e.Category
	}
	if e.CreatedAt != nil {
		props[PropertyCreatedAt] = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	if e.UpdatedAt != nil {
		props[PropertyUpdatedAt] = e.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return props
}

// EntityFromProperties rebuilds an entity from a node property map
func EntityFromProperties(kind EntityKind, props map[string]any) Entity {
	e := Entity{Kind: kind, Properties: map[string]any{}}
	s, ok := SchemaFor(kind)
	if !ok {
		return e
	}

	e.LocalID = AsString(props[s.IDProperty])
	e.Name = AsString(props[s.NameProperty])
	e.AuthoritativeID = AsString(props[AuthoritativeIDProperty])
	e.Provisional = e.AuthoritativeID == ""
	e.AlternateIDs = AsStringSlice(props[AlternateIDsProperty])
	if s.YearProperty != "" {
		e.Year = AsIntPtr(props[s.YearProperty])
	}
	if s.EndYearProperty != "" {
		e.EndYear = AsIntPtr(props[s.EndYearProperty])
	}
	if s.CategoryProperty != "" {
		e.Category = AsString(props[s.CategoryProperty])
	}
	e.CreatedAt = asTimePtr(props[PropertyCreatedAt])
	e.UpdatedAt = asTimePtr(props[PropertyUpdatedAt])

	skip := structuralProperties(s)
	for k, v := range props {
		if !skip[k] {
			e.Properties[k] = v
		}
	}
	return e
}

// AsString renders scalar property values as strings; nil becomes ""
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// AsIntPtr converts the numeric encodings a driver or decoder may produce
func AsIntPtr(v any) *int {
	switch t := v.(type) {
	case int:
		return IntPtr(t)
	case int32:
		return IntPtr(int(t))
	case int64:
		return IntPtr(int(t))
	case float64:
		if t == math.Trunc(t) {
			return IntPtr(int(t))
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return IntPtr(int(n))
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return IntPtr(n)
		}
	}
	return nil
}

// AsStringSlice accepts []string or a driver list of strings
func AsStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := AsString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t != "" {
			return []string{t}
		}
	}
	return nil
}

func asTimePtr(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return &parsed
		}
	}
	return nil
}

// SortedKeys returns the keys of m in order
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
