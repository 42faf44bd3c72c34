// Package snapshot persists the skill library document.
package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mailmind_server/core/domain"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension. Anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// document mirrors domain.SkillSnapshot but keeps is_active optional so
// hand-written snapshots without the field import as active skills.
type document struct {
	Skills     []skillDocument `json:"skills" yaml:"skills"`
	Total      int             `json:"total" yaml:"total"`
	ExportedAt *time.Time      `json:"exported_at,omitempty" yaml:"exported_at,omitempty"`
}

type skillDocument struct {
	ID              string        `json:"id,omitempty" yaml:"id,omitempty"`
	Name            string        `json:"name" yaml:"name"`
	NameEn          string        `json:"name_en" yaml:"name_en"`
	Category        string        `json:"category" yaml:"category"`
	Description     string        `json:"description" yaml:"description"`
	TriggerKeywords []string      `json:"trigger_keywords" yaml:"trigger_keywords"`
	Rules           []domain.Rule `json:"rules" yaml:"rules"`
	UsageCount      int           `json:"usage_count" yaml:"usage_count"`
	SuccessCount    int           `json:"success_count" yaml:"success_count"`
	IsActive        *bool         `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	Version         int           `json:"version,omitempty" yaml:"version,omitempty"`
	CreatedAt       *time.Time    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt       *time.Time    `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

func toDocument(snap *domain.SkillSnapshot) *document {
	doc := &document{Skills: make([]skillDocument, 0, len(snap.Skills)), Total: len(snap.Skills)}
	if !snap.ExportedAt.IsZero() {
		at := snap.ExportedAt.UTC()
		doc.ExportedAt = &at
	}
	for _, s := range snap.Skills {
		active := s.IsActive
		sd := skillDocument{
			ID:              s.ID,
			Name:            s.Name,
			NameEn:          s.NameEn,
			Category:        s.Category,
			Description:     s.Description,
			TriggerKeywords: nonNil(s.TriggerKeywords),
			Rules:           s.Rules,
			UsageCount:      s.UsageCount,
			SuccessCount:    s.SuccessCount,
			IsActive:        &active,
			Version:         s.Version,
		}
		if sd.Rules == nil {
			sd.Rules = []domain.Rule{}
		}
		if !s.CreatedAt.IsZero() {
			created := s.CreatedAt.UTC()
			sd.CreatedAt = &created
		}
		if !s.UpdatedAt.IsZero() {
			updated := s.UpdatedAt.UTC()
			sd.UpdatedAt = &updated
		}
		doc.Skills = append(doc.Skills, sd)
	}
	return doc
}

func (d *document) toDomain() *domain.SkillSnapshot {
	snap := &domain.SkillSnapshot{Skills: make([]domain.Skill, 0, len(d.Skills))}
	if d.ExportedAt != nil {
		snap.ExportedAt = *d.ExportedAt
	}
	for _, sd := range d.Skills {
		s := domain.Skill{
			ID:              sd.ID,
			Name:            sd.Name,
			NameEn:          sd.NameEn,
			Category:        sd.Category,
			Description:     sd.Description,
			TriggerKeywords: sd.TriggerKeywords,
			Rules:           sd.Rules,
			UsageCount:      sd.UsageCount,
			SuccessCount:    sd.SuccessCount,
			IsActive:        true,
			Version:         sd.Version,
		}
		if sd.IsActive != nil {
			s.IsActive = *sd.IsActive
		}
		if s.Version < 1 {
			s.Version = 1
		}
		if sd.CreatedAt != nil {
			s.CreatedAt = *sd.CreatedAt
		}
		if sd.UpdatedAt != nil {
			s.UpdatedAt = *sd.UpdatedAt
		}
		snap.Skills = append(snap.Skills, s)
	}
	snap.Total = len(snap.Skills)
	return snap
}

// Encode renders snap in the given format.
func Encode(snap *domain.SkillSnapshot, format Format) ([]byte, error) {
	doc := toDocument(snap)
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
}

// Decode parses a snapshot document. Skills without is_active are active.
func Decode(data []byte, format Format) (*domain.SkillSnapshot, error) {
	var doc document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("unknown snapshot format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return doc.toDomain(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
