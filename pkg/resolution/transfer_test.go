package resolution

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			src := newFileStore(t)
			require.NoError(t, src.Put(ctx, decision("Q1|a", models.ActionUseExisting)))
			require.NoError(t, src.Put(ctx, decision("Q2|b", models.ActionSkip)))

			var buf bytes.Buffer
			n, err := Export(ctx, src, &buf, format)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			dst := newFileStore(t)
			result, err := Import(ctx, dst, &buf, false)
			require.NoError(t, err)
			assert.Equal(t, ImportResult{Imported: 2}, result)

			got, err := dst.Get(ctx, "Q2|b")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, models.ActionSkip, got.Action)
		})
	}
}

func TestImportKeepsExistingUnlessOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	require.NoError(t, s.Put(ctx, decision("Q1|a", models.ActionSkip)))

	legacy := `{"Q1|a": "create_new", "Q2|b": "use_existing"}`

	result, err := Import(ctx, s, strings.NewReader(legacy), false)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 1, Skipped: 1}, result)
	got, _ := s.Get(ctx, "Q1|a")
	assert.Equal(t, models.ActionSkip, got.Action)

	result, err = Import(ctx, s, strings.NewReader(legacy), true)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Replaced: 2}, result)
	got, _ = s.Get(ctx, "Q1|a")
	assert.Equal(t, models.ActionCreateNew, got.Action)
	assert.Equal(t, models.DecisionSourceImport, got.Source)
}

func TestImportYAMLAnswerMap(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	result, err := Import(ctx, s, strings.NewReader("Q1048|julius_caesar: use_existing\nNapoleon|napoleon: skip\n"), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
}

func TestImportRejectsInvalidBeforeWriting(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	_, err := Import(ctx, s, strings.NewReader(`{"Q1|a": "use_existing", "Q2|b": "merge_please"}`), false)
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
