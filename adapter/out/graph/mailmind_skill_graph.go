package graph

import (
	"context"
	"fmt"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	cypherContribution = `
		MERGE (s:Skill {name_en: $nameEn})
		SET s.skill_id = $skillID,
			s.name = $name,
			s.category = $category
		MERGE (e:Email {email_id: $emailID})
		MERGE (e)-[r:CONTRIBUTED_TO {type: $type}]->(s)
		ON CREATE SET r.created_at = $createdAt
	`

	cypherCollaboration = `
		MERGE (a:Skill {name_en: $from})
		MERGE (b:Skill {name_en: $to})
		MERGE (a)-[r:COLLABORATES_WITH]->(b)
		ON CREATE SET r.created_at = $createdAt
	`

	cypherCollaborators = `
		MATCH (a:Skill {name_en: $nameEn})-[:COLLABORATES_WITH]-(b:Skill)
		RETURN DISTINCT b.name_en AS name_en
		ORDER BY name_en
	`
)

// SkillGraph implements out.SkillGraph using Neo4j. Every write is a MERGE so
// recording the same edge twice is harmless.
type SkillGraph struct {
	driver neo4j.DriverWithContext
	dbName string
	now    func() time.Time
}

// NewSkillGraph creates a new Neo4j skill graph adapter.
func NewSkillGraph(driver neo4j.DriverWithContext, dbName string) *SkillGraph {
	return &SkillGraph{driver: driver, dbName: dbName, now: time.Now}
}

// EnsureIndexes creates necessary constraints for skill and email nodes.
func (g *SkillGraph) EnsureIndexes(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT skill_name_en_unique IF NOT EXISTS FOR (s:Skill) REQUIRE s.name_en IS UNIQUE`,
		`CREATE CONSTRAINT email_id_unique IF NOT EXISTS FOR (e:Email) REQUIRE e.email_id IS UNIQUE`,
		`CREATE INDEX skill_category_idx IF NOT EXISTS FOR (s:Skill) ON (s.category)`,
	}

	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create graph index: %w", err)
		}
	}
	return nil
}

// RecordContribution links an email to the skill it helped shape.
func (g *SkillGraph) RecordContribution(ctx context.Context, skill *domain.Skill, emailID string, kind domain.ContributionType) error {
	params := map[string]any{
		"nameEn":    skill.NameEn,
		"skillID":   skill.ID,
		"name":      skill.Name,
		"category":  skill.Category,
		"emailID":   emailID,
		"type":      string(kind),
		"createdAt": g.now().Unix(),
	}
	if err := g.write(ctx, cypherContribution, params); err != nil {
		return fmt.Errorf("failed to record contribution: %w", err)
	}
	return nil
}

// RecordCollaboration stores a directed hint that from works with to.
func (g *SkillGraph) RecordCollaboration(ctx context.Context, fromNameEn, toNameEn string) error {
	params := map[string]any{
		"from":      fromNameEn,
		"to":        toNameEn,
		"createdAt": g.now().Unix(),
	}
	if err := g.write(ctx, cypherCollaboration, params); err != nil {
		return fmt.Errorf("failed to record collaboration: %w", err)
	}
	return nil
}

// Collaborators returns skills linked to nameEn in either direction.
func (g *SkillGraph) Collaborators(ctx context.Context, nameEn string) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: g.dbName,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	names, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypherCollaborators, map[string]any{"nameEn": nameEn})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return collectNames(records), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	return names.([]string), nil
}

func (g *SkillGraph) write(ctx context.Context, query string, params map[string]any) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.dbName})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

func collectNames(records []*neo4j.Record) []string {
	names := make([]string, 0, len(records))
	for _, record := range records {
		v, ok := record.Get("name_en")
		if !ok {
			continue
		}
		if name, ok := v.(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

var _ out.SkillGraph = (*SkillGraph)(nil)
