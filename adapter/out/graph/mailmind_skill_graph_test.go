package graph

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
)

func TestCollectNames(t *testing.T) {
	records := []*neo4j.Record{
		{Keys: []string{"name_en"}, Values: []any{"refund-handling"}},
		{Keys: []string{"name_en"}, Values: []any{nil}},
		{Keys: []string{"other"}, Values: []any{"ignored"}},
		{Keys: []string{"name_en"}, Values: []any{"shipping"}},
	}

	assert.Equal(t, []string{"refund-handling", "shipping"}, collectNames(records))
}

func TestCollectNames_Empty(t *testing.T) {
	names := collectNames(nil)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}
