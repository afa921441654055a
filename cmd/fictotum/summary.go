package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func modeLabel(dryRun bool) string {
	if dryRun {
		return yellow("DRY RUN")
	}
	return green("EXECUTED")
}

func printImportSummary(w io.Writer, res *importer.RunResult) {
	fmt.Fprintf(w, "\n%s %s (%s)\n", bold("Import"), res.Run.BatchID, modeLabel(res.DryRun()))
	fmt.Fprintf(w, "  outcome:       %s\n", outcomeLabel(res.Run.Outcome))
	fmt.Fprintf(w, "  figures:       %d created, %d linked, %d skipped\n", res.Stats.Figures.Created, res.Stats.Figures.Linked, res.Stats.Figures.Skipped)
	fmt.Fprintf(w, "  works:         %d created, %d linked, %d skipped\n", res.Stats.Works.Created, res.Stats.Works.Linked, res.Stats.Works.Skipped)
	fmt.Fprintf(w, "  relationships: %d created, %d skipped\n", res.Stats.RelationshipsCreated, res.Stats.RelationshipsSkipped)
	printProblems(w, res.Errors, res.Warnings)
}

func outcomeLabel(outcome models.ImportOutcome) string {
	switch outcome {
	case models.ImportOutcomeSuccess:
		return green(outcome)
	case models.ImportOutcomePartial:
		return yellow(outcome)
	}
	return red(outcome)
}

func printCheckSummary(w io.Writer, res *importer.CheckResult) {
	dups := res.Duplicates()
	fmt.Fprintf(w, "\n%s %d records, %d possible duplicates\n", bold("Duplicate check:"), len(res.Entries), len(dups))
	for _, entry := range dups {
		fmt.Fprintf(w, "  %-10s %-18s %q -> %s (%.3f)\n", entry.Kind, entry.Tier, entry.Name, entry.MatchedID, entry.Score)
	}
	printProblems(w, res.Errors, res.Warnings)
}

func printMergeSummary(w io.Writer, res *merging.Result) {
	s := res.Summary
	fmt.Fprintf(w, "\n%s %s (%s)\n", bold("Merge"), res.Kind, modeLabel(res.DryRun))
	fmt.Fprintf(w, "  groups:        %d (%d need manual review)\n", s.Groups, s.ManualReview)
	if res.DryRun {
		fmt.Fprintf(w, "  would merge:   %d\n", s.Simulated)
	} else {
		fmt.Fprintf(w, "  merged:        %s\n", green(s.Merged))
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "  failed:        %s\n", red(s.Failed))
	}
	fmt.Fprintf(w, "  redirected:    %s\n", countsByType(s.Redirected))
	fmt.Fprintf(w, "  coalesced:     %s\n", countsByType(s.Coalesced))
	fmt.Fprintf(w, "  references:    %d repaired\n", s.ReferencesRepaired)
	for _, group := range res.ManualReview {
		fmt.Fprintf(w, "  %s %q: %s\n", yellow("review"), group.Name, group.Reason)
	}
	printProblems(w, res.Errors, res.Warnings)
}

func countsByType(counts map[models.RelationshipType]int) string {
	if len(counts) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(counts))
	for typ, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", typ, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func printProblems(w io.Writer, errs []models.ErrorEntry, warnings []string) {
	for _, e := range errs {
		fmt.Fprintf(w, "  %s %s: %s\n", red("error"), e.Scope, e.Message)
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "  %s %s\n", yellow("warning"), warning)
	}
}
