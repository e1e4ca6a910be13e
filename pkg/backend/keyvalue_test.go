package backend

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
)

func newTestKeyValue(t *testing.T) *keyValue {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	require.NoError(t, err)

	cfg := &config.DataSource{
		Name:       "cache",
		Type:       config.TypeKeyValue,
		Connection: map[string]any{"host": srv.Host(), "port": port},
	}
	k, err := newKeyValue(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, k.Connect(context.Background()))
	t.Cleanup(func() { _ = k.Disconnect(context.Background()) })
	return k
}

func TestKeyValueSetGetDelete(t *testing.T) {
	k := newTestKeyValue(t)
	ctx := context.Background()

	res, err := k.Execute(ctx, "set_key", map[string]any{"key": "greeting", "value": "hello"})
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = k.Execute(ctx, "get_key", map[string]any{"key": "greeting"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "hello", res.Content)

	res, err = k.Execute(ctx, "delete_key", map[string]any{"key": "greeting"})
	require.NoError(t, err)
	assert.Equal(t, "Deleted successfully. Keys affected: 1", res.Content)

	res, err = k.Execute(ctx, "get_key", map[string]any{"key": "greeting"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "(nil)", res.Content)
}

func TestKeyValueMissingKeyArgument(t *testing.T) {
	k := newTestKeyValue(t)
	res, err := k.Execute(context.Background(), "get_key", map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestKeyValueKeysResource(t *testing.T) {
	k := newTestKeyValue(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := k.Execute(ctx, "set_key", map[string]any{"key": key, "value": "v"})
		require.NoError(t, err)
	}

	out, err := k.ReadResource(ctx, "keyvalue://cache/keys")
	require.NoError(t, err)

	var keys []string
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}

func TestKeyValueUnknownResource(t *testing.T) {
	k := newTestKeyValue(t)
	_, err := k.ReadResource(context.Background(), "keyvalue://cache/nope")
	assert.Error(t, err)
}

func TestKeyValueRequiresHost(t *testing.T) {
	cfg := &config.DataSource{
		Name:       "cache",
		Type:       config.TypeKeyValue,
		Connection: map[string]any{"port": 6379},
	}
	_, err := newKeyValue(cfg, testLogger())
	assert.Error(t, err)
}
