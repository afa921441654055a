package merging

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fictotum/pkg/models"
	"github.com/Ramsey-B/fictotum/pkg/normalizers"
)

// DetectGroups buckets snapshots by normalized name. A bucket where any member
// lacks a discriminating attribute goes to manual review as a whole; the rest
// are split by (year, category) and every split of two or more is a group.
func DetectGroups(kind models.EntityKind, snapshots []models.EntitySnapshot) ([]models.DuplicateGroup, []models.ManualReviewGroup) {
	schema, _ := models.SchemaFor(kind)

	buckets := map[string][]models.EntitySnapshot{}
	for _, s := range snapshots {
		key := normalizers.GroupKey(s.Entity.Name)
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], s)
	}

	var groups []models.DuplicateGroup
	var manual []models.ManualReviewGroup
	for _, name := range models.SortedKeys(buckets) {
		members := buckets[name]
		if len(members) < 2 {
			continue
		}

		if reason := missingDiscriminator(schema, members); reason != "" {
			entities := make([]models.Entity, 0, len(members))
			for _, m := range members {
				entities = append(entities, m.Entity)
			}
			sort.Slice(entities, func(i, j int) bool { return entities[i].LocalID < entities[j].LocalID })
			manual = append(manual, models.ManualReviewGroup{Kind: kind, Name: name, Members: entities, Reason: reason})
			continue
		}

		sub := map[string][]models.EntitySnapshot{}
		for _, m := range members {
			key := discriminatorKey(name, m.Entity)
			sub[key] = append(sub[key], m)
		}
		for _, key := range models.SortedKeys(sub) {
			if len(sub[key]) < 2 {
				continue
			}
			groups = append(groups, models.DuplicateGroup{Kind: kind, Key: key, Members: sub[key]})
		}
	}
	return groups, manual
}

func missingDiscriminator(schema models.KindSchema, members []models.EntitySnapshot) string {
	for _, m := range members {
		if schema.YearProperty != "" && m.Entity.Year == nil {
			return fmt.Sprintf("%s has no %s", m.Entity.LocalID, schema.YearProperty)
		}
		if schema.CategoryProperty != "" && strings.TrimSpace(m.Entity.Category) == "" {
			return fmt.Sprintf("%s has no %s", m.Entity.LocalID, schema.CategoryProperty)
		}
	}
	return ""
}

func discriminatorKey(name string, e models.Entity) string {
	year := ""
	if e.Year != nil {
		year = strconv.Itoa(*e.Year)
	}
	return name + "|" + year + "|" + normalizers.GroupKey(e.Category)
}

var digits = regexp.MustCompile(`\d+`)

// authoritativeNumber extracts the numeric part of an id; ok is false when there is none
func authoritativeNumber(id string) (int64, bool) {
	m := digits.FindString(id)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 64)
	return n, err == nil
}

// RankMembers orders members best-primary first: most relationships, then most
// populated properties, then the tiebreak policy, then local id
func RankMembers(members []models.EntitySnapshot, policy models.TiebreakPolicy) []models.EntitySnapshot {
	ranked := append([]models.EntitySnapshot(nil), members...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.RelationshipCount != b.RelationshipCount {
			return a.RelationshipCount > b.RelationshipCount
		}
		if pa, pb := a.Entity.NonNullPropertyCount(), b.Entity.NonNullPropertyCount(); pa != pb {
			return pa > pb
		}
		if less, decided := tiebreak(policy, a.Entity, b.Entity); decided {
			return less
		}
		return a.Entity.LocalID < b.Entity.LocalID
	})
	return ranked
}

func tiebreak(policy models.TiebreakPolicy, a, b models.Entity) (less, decided bool) {
	switch policy {
	case models.TiebreakLowestLocalID:
		return a.LocalID < b.LocalID, a.LocalID != b.LocalID
	case models.TiebreakEarliestCreated:
		switch {
		case a.CreatedAt == nil && b.CreatedAt == nil:
			return false, false
		case a.CreatedAt == nil:
			return false, true
		case b.CreatedAt == nil:
			return true, true
		}
		return a.CreatedAt.Before(*b.CreatedAt), !a.CreatedAt.Equal(*b.CreatedAt)
	default:
		na, oka := authoritativeNumber(a.AuthoritativeID)
		nb, okb := authoritativeNumber(b.AuthoritativeID)
		switch {
		case !oka && !okb:
			return false, false
		case !oka:
			return false, true
		case !okb:
			return true, true
		}
		return na < nb, na != nb
	}
}

// ParseTiebreakPolicy accepts a policy name; empty means the default
func ParseTiebreakPolicy(s string) (models.TiebreakPolicy, error) {
	switch p := models.TiebreakPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return models.TiebreakLowestAuthoritativeID, nil
	case models.TiebreakLowestAuthoritativeID, models.TiebreakLowestLocalID, models.TiebreakEarliestCreated:
		return p, nil
	}
	return "", &models.ValidationError{Field: "tiebreak", Message: fmt.Sprintf("unknown tiebreak policy %q", s)}
}

// ParseRetireMode accepts a retirement mode; empty means delete
func ParseRetireMode(s string) (models.RetireMode, error) {
	switch m := models.RetireMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return models.RetireModeDelete, nil
	case models.RetireModeDelete, models.RetireModeTombstone:
		return m, nil
	}
	return "", &models.ValidationError{Field: "retire", Message: fmt.Sprintf("unknown retire mode %q", s)}
}
