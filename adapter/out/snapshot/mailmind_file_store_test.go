package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *domain.SkillSnapshot {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	skills := []*domain.Skill{
		{
			ID:              "s1",
			Name:            "Refunds",
			NameEn:          "refund-handling",
			Category:        "refund-cancellation",
			TriggerKeywords: []string{"refund", "money back"},
			Rules: []domain.Rule{{
				RuleID:           "rule_0a1b2c3d",
				Name:             "Standard refund",
				Conditions:       []string{"refund"},
				ActionSteps:      []string{"verify order"},
				ResponseTemplate: "Hello {customer_name}, {company} will refund you.",
				Priority:         2,
			}},
			UsageCount:   7,
			SuccessCount: 5,
			IsActive:     false,
			Version:      3,
			CreatedAt:    created,
			UpdatedAt:    created,
		},
	}
	return domain.NewSkillSnapshot(skills, created)
}

func TestFileStore_RoundTrip(t *testing.T) {
	for _, name := range []string{"skills.json", "skills.yaml", "skills.yml"} {
		t.Run(name, func(t *testing.T) {
			store := NewFileStore(filepath.Join(t.TempDir(), "nested", name))
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, sampleSnapshot()))

			got, err := store.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got.Skills, 1)
			assert.Equal(t, 1, got.Total)

			s := got.Skills[0]
			assert.Equal(t, "s1", s.ID)
			assert.Equal(t, "refund-handling", s.NameEn)
			assert.Equal(t, 7, s.UsageCount)
			assert.Equal(t, 5, s.SuccessCount)
			assert.False(t, s.IsActive)
			assert.Equal(t, 3, s.Version)
			require.Len(t, s.Rules, 1)
			assert.Equal(t, "rule_0a1b2c3d", s.Rules[0].RuleID)
			assert.Equal(t, 2, s.Rules[0].Priority)
			assert.True(t, s.CreatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
		})
	}
}

func TestFileStore_MissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, out.ErrNoSnapshot)
}

func TestFileStore_DefaultsActive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.json")
	doc := `{"skills":[{"name":"Shipping","name_en":"shipping","category":"logistics-issue","trigger_keywords":["delivery"],"rules":[]}],"total":1}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Skills, 1)
	assert.True(t, got.Skills[0].IsActive)
	assert.Equal(t, 1, got.Skills[0].Version)
	assert.Empty(t, got.Skills[0].ID)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, out.ErrNoSnapshot)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "skills.json"))

	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "skills.json", entries[0].Name())
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path     string
		expected Format
	}{
		{"skills.json", FormatJSON},
		{"skills.YAML", FormatYAML},
		{"dir/skills.yml", FormatYAML},
		{"skills", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatFor(tt.path))
		})
	}
}
