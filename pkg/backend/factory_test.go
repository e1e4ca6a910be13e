package backend

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter("test", io.Discard)
}

func TestFactoryDispatch(t *testing.T) {
	f := NewFactory(testLogger())

	tests := []struct {
		name string
		cfg  config.DataSource
	}{
		{"relational", config.DataSource{
			Name: "db", Type: config.TypeRelational,
			Connection: map[string]any{"driver": "sqlite", "path": "/tmp/t.db"},
		}},
		{"document", config.DataSource{
			Name: "docs", Type: config.TypeDocument,
			Connection: map[string]any{"host": "localhost", "port": 27017, "database": "d"},
		}},
		{"keyvalue", config.DataSource{
			Name: "cache", Type: config.TypeKeyValue,
			Connection: map[string]any{"host": "localhost", "port": 6379},
		}},
		{"search", config.DataSource{
			Name: "idx", Type: config.TypeSearch,
			Connection: map[string]any{"host": "localhost", "port": 9200},
		}},
		{"rest", config.DataSource{
			Name: "api", Type: config.TypeREST,
			Connection: map[string]any{"base_url": "https://api.example.com"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := f.New(&tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, b)
			assert.NotEmpty(t, b.ListResources())
			assert.NotEmpty(t, b.ListTools())
		})
	}
}

func TestFactoryUnsupportedType(t *testing.T) {
	f := NewFactory(testLogger())
	_, err := f.New(&config.DataSource{Name: "g", Type: "graph", Connection: map[string]any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported data source type")
}

func TestFactoryNewAllSkipsFailures(t *testing.T) {
	f := NewFactory(testLogger())
	cfgs := []config.DataSource{
		{Name: "a", Type: config.TypeREST, Enabled: true,
			Connection: map[string]any{"base_url": "https://a.example.com"}},
		{Name: "bad", Type: "graph", Enabled: true, Connection: map[string]any{}},
		{Name: "b", Type: config.TypeKeyValue, Enabled: true,
			Connection: map[string]any{"host": "localhost", "port": 6379}},
		{Name: "off", Type: config.TypeREST, Enabled: false,
			Connection: map[string]any{"base_url": "https://off.example.com"}},
	}
	backends := f.NewAll(cfgs)
	assert.Len(t, backends, 2)
}
