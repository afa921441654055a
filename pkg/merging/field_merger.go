package merging

import (
	"fmt"
	"reflect"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// FieldMerger reconciles property maps when a duplicate is folded into its primary
type FieldMerger struct {
	strategies map[string]models.MergeStrategyType
}

// NewFieldMerger creates a FieldMerger. Properties without a strategy are coalesced.
func NewFieldMerger(strategies map[string]models.MergeStrategyType) *FieldMerger {
	if strategies == nil {
		strategies = map[string]models.MergeStrategyType{}
	}
	return &FieldMerger{strategies: strategies}
}

// managedProperties are never copied from a duplicate by MergeProperties
var managedProperties = map[string]bool{
	models.AuthoritativeIDProperty: true,
	models.AlternateIDsProperty:    true,
	models.PropertyCreatedAt:       true,
	models.PropertyUpdatedAt:       true,
	models.PropertyMergedInto:      true,
	models.PropertyRetiredAt:       true,
	"provisional":                  true,
}

// MergeProperties returns the updates to apply to primary and the names of the
// properties that changed. The primary's populated values always win under coalesce.
func (m *FieldMerger) MergeProperties(kind models.EntityKind, primary, duplicate map[string]any) (map[string]any, []string) {
	skip := map[string]bool{}
	if s, ok := models.SchemaFor(kind); ok {
		skip[s.IDProperty] = true
		skip[s.NameProperty] = true
	}

	updates := map[string]any{}
	var changed []string
	for _, field := range models.SortedKeys(duplicate) {
		if managedProperties[field] || skip[field] {
			continue
		}
		dupVal := duplicate[field]
		if models.IsEmptyValue(dupVal) {
			continue
		}

		var merged any
		switch m.strategies[field] {
		case models.MergeStrategyKeepPrimary:
			continue
		case models.MergeStrategyCollectAll:
			merged = m.collectAll(primary[field], dupVal)
			if sameValue(merged, primary[field]) {
				continue
			}
		default:
			if !models.IsEmptyValue(primary[field]) {
				continue
			}
			merged = dupVal
		}
		updates[field] = merged
		changed = append(changed, field)
	}
	return updates, changed
}

// CoalesceEdge returns the properties a parallel duplicate edge contributes to
// the surviving edge: only keys the survivor lacks
func (m *FieldMerger) CoalesceEdge(survivor, duplicate map[string]any) map[string]any {
	updates := map[string]any{}
	for k, v := range duplicate {
		if models.IsEmptyValue(v) || !models.IsEmptyValue(survivor[k]) {
			continue
		}
		updates[k] = v
	}
	return updates
}

// collectAll combines both values into a deduplicated list, primary values first
func (m *FieldMerger) collectAll(values ...any) any {
	result := make([]any, 0)
	seen := make(map[string]bool)

	for _, value := range values {
		if value == nil {
			continue
		}
		items := []any{value}
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.Slice {
			items = make([]any, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				items = append(items, rv.Index(i).Interface())
			}
		}
		for _, item := range items {
			key := fmt.Sprintf("%v", item)
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, item)
		}
	}
	return result
}

func sameValue(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// appendAlternateIDs adds ids to existing, skipping the primary's own id and repeats
func appendAlternateIDs(existing []string, primaryID string, ids ...string) ([]string, []string) {
	seen := map[string]bool{primaryID: true}
	out := append([]string(nil), existing...)
	for _, id := range existing {
		seen[id] = true
	}
	var added []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		added = append(added, id)
	}
	return out, added
}
