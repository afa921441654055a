package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/models"
)

type recordingPutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (r *recordingPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.input = in
	r.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func importResult() *importer.RunResult {
	return &importer.RunResult{
		Run: models.ImportRun{
			BatchID:   "batch_import_20260101_000000",
			Source:    "curation",
			Curator:   "tester",
			DryRun:    true,
			StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Outcome:   models.ImportOutcomeSuccess,
		},
		Stats: models.ImportStats{Figures: models.KindStats{Created: 1, Linked: 2}},
		Records: []models.RecordOutcome{
			{Kind: models.EntityKindHistoricalFigure, Name: "Julius | Caesar", Tier: models.MatchTierExact, Score: 1, Action: models.ActionUseExisting, LocalID: "julius_caesar"},
		},
		Warnings: []string{"identity service unavailable"},
	}
}

func mergeResult() *merging.Result {
	records := []models.MergeRecord{{
		PrimaryID:         "war-and-peace-1869",
		DuplicateID:       "war-and-peace-copy",
		Status:            models.MergeStatusDryRun,
		Redirected:        map[models.RelationshipType]int{models.RelationshipAppearsIn: 2, models.RelationshipBasedOn: 1},
		Coalesced:         map[models.RelationshipType]int{models.RelationshipAppearsIn: 1},
		AlternateIDsAdded: []string{"AID-2"},
	}}
	return &merging.Result{
		Kind:    models.EntityKindMediaWork,
		DryRun:  true,
		Records: records,
		ManualReview: []models.ManualReviewGroup{{
			Name:    "anna karenina",
			Members: []models.Entity{{LocalID: "anna-1"}, {LocalID: "anna-2"}},
			Reason:  "anna-2 has no release_year",
		}},
		Summary: models.Summarize(1, 1, records),
	}
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("reports/run.JSON"))
	assert.Equal(t, FormatMarkdown, FormatFor("reports/run.md"))
	assert.Equal(t, FormatMarkdown, FormatFor("s3://bucket/report"))
}

func TestRenderImportMarkdown(t *testing.T) {
	out, err := Render(FormatMarkdown, importResult())
	require.NoError(t, err)
	md := string(out)

	assert.Contains(t, md, "# Batch import batch_import_20260101_000000")
	assert.Contains(t, md, "- Mode: DRY RUN")
	assert.Contains(t, md, "| Figures | 1 | 2 | 0 |")
	assert.Contains(t, md, `Julius \| Caesar`)
	assert.Contains(t, md, "| exact | 1.000 | use_existing |")
	assert.Contains(t, md, "## Warnings\n\n- identity service unavailable")
	assert.NotContains(t, md, "## Errors")
}

func TestRenderMergeMarkdown(t *testing.T) {
	out, err := Render(FormatMarkdown, mergeResult())
	require.NoError(t, err)
	md := string(out)

	assert.Contains(t, md, "# Duplicate merge: MediaWork")
	assert.Contains(t, md, "| APPEARS_IN | 2 | 1 |")
	assert.Contains(t, md, "| BASED_ON | 1 | 0 |")
	assert.Contains(t, md, "APPEARS_IN=2 BASED_ON=1")
	assert.Contains(t, md, "- **anna karenina** (anna-1, anna-2): anna-2 has no release_year")
}

func TestRenderJSON(t *testing.T) {
	out, err := Render(FormatJSON, mergeResult())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "MediaWork", decoded["kind"])
	assert.Equal(t, true, decoded["dry_run"])
}

func TestRenderRejectsUnknownResult(t *testing.T) {
	_, err := Render(FormatMarkdown, struct{}{})
	assert.Error(t, err)
}

func TestWriteLocal(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	dest := filepath.Join(t.TempDir(), "nested", "import.json")

	require.NoError(t, NewWriter(nil, logger).Write(context.Background(), dest, importResult()))
	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"batch_id": "batch_import_20260101_000000"`)
}

func TestWriteS3(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	putter := &recordingPutter{}

	err := NewWriter(putter, logger).Write(context.Background(), "s3://audit/merges/run.md", mergeResult())
	require.NoError(t, err)
	require.NotNil(t, putter.input)
	assert.Equal(t, "audit", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "merges/run.md", aws.ToString(putter.input.Key))
	assert.Equal(t, "text/markdown; charset=utf-8", aws.ToString(putter.input.ContentType))
	assert.Contains(t, string(putter.body), "# Duplicate merge")
}

func TestWriteS3Failures(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	ctx := context.Background()

	err := NewWriter(nil, logger).Write(ctx, "s3://audit/run.md", mergeResult())
	assert.ErrorContains(t, err, "no s3 client")

	err = NewWriter(&recordingPutter{err: errors.New("access denied")}, logger).Write(ctx, "s3://audit/run.md", mergeResult())
	assert.ErrorContains(t, err, "access denied")
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		ok          bool
	}{
		{"s3://audit/reports/a.md", "audit", "reports/a.md", true},
		{"s3://audit", "", "", false},
		{"s3:///key", "", "", false},
		{"reports/a.md", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bucket, key, ok := ParseS3URL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}
