package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
)

func newTestDocument(t *testing.T) *document {
	t.Helper()
	cfg := &config.DataSource{
		Name:        "docs",
		Type:        config.TypeDocument,
		Connection:  map[string]any{"host": "localhost", "port": 27017, "database": "content"},
		Collections: []string{"articles"},
	}
	d, err := newDocument(cfg, testLogger())
	require.NoError(t, err)
	return d
}

func TestDocumentResourcesAndTools(t *testing.T) {
	d := newTestDocument(t)

	uris := make([]string, 0)
	for _, r := range d.ListResources() {
		uris = append(uris, r.URI)
	}
	assert.Contains(t, uris, "document://docs/collections")
	assert.Contains(t, uris, "document://docs/collection/articles")

	names := make([]string, 0)
	for _, tool := range d.ListTools() {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"find_documents", "count_documents", "insert_document"}, names)
}

func TestDocumentNotConnectedIsSoft(t *testing.T) {
	d := newTestDocument(t)

	res, err := d.Execute(context.Background(), "find_documents", map[string]any{"collection": "articles"})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	_, err = d.ReadResource(context.Background(), "document://docs/collections")
	assert.Error(t, err)
}

func TestDocumentMissingCollection(t *testing.T) {
	d := newTestDocument(t)
	res, err := d.Execute(context.Background(), "find_documents", map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "collection")
}

func TestDocumentRequiresHostAndDatabase(t *testing.T) {
	_, err := newDocument(&config.DataSource{
		Name:       "docs",
		Type:       config.TypeDocument,
		Connection: map[string]any{"port": 27017, "database": "content"},
	}, testLogger())
	assert.Error(t, err)

	_, err = newDocument(&config.DataSource{
		Name:       "docs",
		Type:       config.TypeDocument,
		Connection: map[string]any{"host": "localhost", "port": 27017},
	}, testLogger())
	assert.Error(t, err)
}

func TestDecodeFilter(t *testing.T) {
	f, err := decodeFilter("")
	require.NoError(t, err)
	assert.Empty(t, f)

	f, err = decodeFilter(`{"status":"published"}`)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"status": "published"}, f)

	_, err = decodeFilter(`not json`)
	assert.Error(t, err)
}

func TestNormalizeBSON(t *testing.T) {
	id := primitive.NewObjectID()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	doc := bson.M{
		"_id":     id,
		"created": primitive.NewDateTimeFromTime(when),
		"tags":    bson.A{"go", bson.M{"nested": id}},
		"title":   "hello",
	}
	out, ok := normalizeBSON(doc).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, id.Hex(), out["_id"])
	assert.Equal(t, when, out["created"])
	assert.Equal(t, "hello", out["title"])

	tags, ok := out["tags"].([]any)
	require.True(t, ok)
	assert.Equal(t, "go", tags[0])
	nested, ok := tags[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, id.Hex(), nested["nested"])
}
