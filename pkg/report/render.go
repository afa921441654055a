// Package report renders import, check and merge results for human review and
// writes them to a local path or an S3 object.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

// Format is a report encoding
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// FormatFor picks the format from a destination's extension; anything but .json is markdown
func FormatFor(dest string) Format {
	if strings.EqualFold(path.Ext(dest), ".json") {
		return FormatJSON
	}
	return FormatMarkdown
}

// Render encodes a result. Supported results are *importer.RunResult,
// *importer.CheckResult and *merging.Result.
func Render(format Format, result any) ([]byte, error) {
	if format == FormatJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		return append(out, '\n'), nil
	}

	var b bytes.Buffer
	switch r := result.(type) {
	case *importer.RunResult:
		importMarkdown(&b, r)
	case *importer.CheckResult:
		checkMarkdown(&b, r)
	case *merging.Result:
		mergeMarkdown(&b, r)
	default:
		return nil, fmt.Errorf("no markdown layout for %T", result)
	}
	return b.Bytes(), nil
}

func mode(dryRun bool) string {
	if dryRun {
		return "DRY RUN"
	}
	return "EXECUTED"
}

func importMarkdown(b *bytes.Buffer, r *importer.RunResult) {
	run := r.Run
	fmt.Fprintf(b, "# Batch import %s\n\n", run.BatchID)
	fmt.Fprintf(b, "- Mode: %s\n", mode(run.DryRun))
	fmt.Fprintf(b, "- Outcome: %s\n", run.Outcome)
	fmt.Fprintf(b, "- Source: %s\n", run.Source)
	fmt.Fprintf(b, "- Curator: %s\n", run.Curator)
	fmt.Fprintf(b, "- Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(b, "- Duration: %dms\n\n", run.DurationMS)

	b.WriteString("## Statistics\n\n")
	b.WriteString("| | Created | Linked | Skipped |\n|---|---|---|---|\n")
	fmt.Fprintf(b, "| Figures | %d | %d | %d |\n", r.Stats.Figures.Created, r.Stats.Figures.Linked, r.Stats.Figures.Skipped)
	fmt.Fprintf(b, "| Works | %d | %d | %d |\n\n", r.Stats.Works.Created, r.Stats.Works.Linked, r.Stats.Works.Skipped)
	fmt.Fprintf(b, "Relationships created: %d, skipped: %d\n\n", r.Stats.RelationshipsCreated, r.Stats.RelationshipsSkipped)

	if len(r.Records) > 0 {
		b.WriteString("## Records\n\n")
		b.WriteString("| Kind | # | Name | Tier | Score | Action | Local id | Note |\n|---|---|---|---|---|---|---|---|\n")
		for _, rec := range r.Records {
			fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s | %s | %s |\n",
				rec.Kind, rec.Index, cell(rec.Name), rec.Tier, score(rec.Score), rec.Action, cell(rec.LocalID), cell(rec.Reason))
		}
		b.WriteString("\n")
	}

	if len(r.Relationships) > 0 {
		b.WriteString("## Relationships\n\n")
		b.WriteString("| # | Type | From | To | Written | Note |\n|---|---|---|---|---|---|\n")
		for _, rel := range r.Relationships {
			fmt.Fprintf(b, "| %d | %s | %s | %s | %t | %s |\n",
				rel.Index, rel.Type, cell(rel.From.ID), cell(rel.To.ID), rel.Written, cell(rel.Reason))
		}
		b.WriteString("\n")
	}

	problems(b, r.Errors, r.Warnings)
}

func checkMarkdown(b *bytes.Buffer, r *importer.CheckResult) {
	fmt.Fprintf(b, "# Duplicate check: %s\n\n", r.Source)
	fmt.Fprintf(b, "%d of %d records match stored entities.\n\n", len(r.Duplicates()), len(r.Entries))
	if len(r.Entries) > 0 {
		b.WriteString("| Kind | # | Name | Tier | Score | Matched |\n|---|---|---|---|---|---|\n")
		for _, e := range r.Entries {
			fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s |\n",
				e.Kind, e.Index, cell(e.Name), e.Tier, score(e.Score), cell(e.MatchedID))
		}
		b.WriteString("\n")
	}
	problems(b, r.Errors, r.Warnings)
}

func mergeMarkdown(b *bytes.Buffer, r *merging.Result) {
	s := r.Summary
	fmt.Fprintf(b, "# Duplicate merge: %s\n\n", r.Kind)
	fmt.Fprintf(b, "- Mode: %s\n", mode(r.DryRun))
	fmt.Fprintf(b, "- Run: %s\n", r.RunID)
	fmt.Fprintf(b, "- Groups: %d\n", s.Groups)
	fmt.Fprintf(b, "- Manual review: %d\n", s.ManualReview)
	fmt.Fprintf(b, "- Merged: %d, simulated: %d, failed: %d\n", s.Merged, s.Simulated, s.Failed)
	fmt.Fprintf(b, "- References repaired: %d\n\n", s.ReferencesRepaired)

	if len(s.Redirected) > 0 || len(s.Coalesced) > 0 {
		b.WriteString("## Relationships\n\n| Type | Redirected | Coalesced |\n|---|---|---|\n")
		for _, t := range relationshipTypes(s.Redirected, s.Coalesced) {
			fmt.Fprintf(b, "| %s | %d | %d |\n", t, s.Redirected[t], s.Coalesced[t])
		}
		b.WriteString("\n")
	}

	if len(r.Records) > 0 {
		b.WriteString("## Merges\n\n")
		b.WriteString("| Primary | Duplicate | Status | Redirected | Coalesced | Internal | Alternate ids | Filled | Error |\n")
		b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
		for _, rec := range r.Records {
			fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %d | %s | %s | %s |\n",
				cell(rec.PrimaryID), cell(rec.DuplicateID), rec.Status,
				perType(rec.Redirected), perType(rec.Coalesced), rec.InternalRemoved,
				cell(strings.Join(rec.AlternateIDsAdded, ", ")), cell(strings.Join(rec.PropertiesFilled, ", ")), cell(rec.Error))
		}
		b.WriteString("\n")
	}

	if len(r.ManualReview) > 0 {
		b.WriteString("## Manual review\n\n")
		for _, m := range r.ManualReview {
			ids := make([]string, 0, len(m.Members))
			for _, e := range m.Members {
				ids = append(ids, e.LocalID)
			}
			fmt.Fprintf(b, "- **%s** (%s): %s\n", m.Name, strings.Join(ids, ", "), m.Reason)
		}
		b.WriteString("\n")
	}

	problems(b, r.Errors, r.Warnings)
}

func problems(b *bytes.Buffer, errs []models.ErrorEntry, warnings []string) {
	if len(errs) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range errs {
			fmt.Fprintf(b, "- `%s` [%s] %s\n", e.Scope, e.Kind, e.Message)
		}
		b.WriteString("\n")
	}
	if len(warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range warnings {
			fmt.Fprintf(b, "- %s\n", w)
		}
		b.WriteString("\n")
	}
}

func relationshipTypes(maps ...map[models.RelationshipType]int) []models.RelationshipType {
	seen := map[models.RelationshipType]bool{}
	var out []models.RelationshipType
	for _, m := range maps {
		for t := range m {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func perType(m map[models.RelationshipType]int) string {
	if len(m) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(m))
	for _, t := range relationshipTypes(m) {
		parts = append(parts, fmt.Sprintf("%s=%d", t, m[t]))
	}
	return strings.Join(parts, " ")
}

func score(s float64) string {
	if s == 0 {
		return ""
	}
	return fmt.Sprintf("%.3f", s)
}

// cell escapes table separators
func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
