package mongodb

import (
	"fmt"
	"testing"
	"time"

	"mailmind_server/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveSnapshot(n int) *domain.SkillSnapshot {
	at := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	skills := make([]*domain.Skill, 0, n)
	for i := 0; i < n; i++ {
		skills = append(skills, &domain.Skill{
			ID:              fmt.Sprintf("id-%d", i),
			Name:            fmt.Sprintf("Skill %d", i),
			NameEn:          fmt.Sprintf("skill-%d", i),
			Category:        "other",
			TriggerKeywords: []string{"help"},
			Rules:           []domain.Rule{},
			UsageCount:      i,
			IsActive:        true,
			Version:         1,
			CreatedAt:       at,
			UpdatedAt:       at,
		})
	}
	return domain.NewSkillSnapshot(skills, at)
}

func TestSnapshotDocument_Compression(t *testing.T) {
	tests := []struct {
		name       string
		skills     int
		compressed bool
	}{
		{"empty library", 0, false},
		{"large library", 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := toSnapshotDocument(archiveSnapshot(tt.skills))
			require.NoError(t, err)
			assert.Equal(t, tt.compressed, doc.IsCompressed)
			assert.Equal(t, tt.skills, doc.Total)
			if tt.compressed {
				assert.Less(t, doc.CompressedSize, doc.OriginalSize)
			}

			got, err := fromSnapshotDocument(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.skills, got.Total)
			require.Len(t, got.Skills, tt.skills)
			if tt.skills > 0 {
				assert.Equal(t, "skill-3", got.Skills[3].NameEn)
				assert.Equal(t, 3, got.Skills[3].UsageCount)
			}
		})
	}
}

func TestSnapshotDocument_CorruptContent(t *testing.T) {
	_, err := fromSnapshotDocument(&snapshotDocument{Content: []byte("garbage"), IsCompressed: true})
	assert.Error(t, err)
}
