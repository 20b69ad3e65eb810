package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProps(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.properties")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeProps(t, "server.id=node-a\nserver.port=5555\n")
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a", c.ServerID)
	assert.Equal(t, 5555, c.ServerPort)
	assert.Equal(t, defaultSyncPort, c.SyncPort)
	assert.Equal(t, defaultSyncIntervalMS, c.SyncIntervalMS)
	assert.False(t, c.IsBalancer)
}

func TestLoadParsesSeedServers(t *testing.T) {
	path := writeProps(t, "server.id=node-a\nseed.servers=node-b:10.0.0.2:6000,node-c:10.0.0.3:6000\n")
	c, err := Load(path)
	require.NoError(t, err)

	require.Len(t, c.SeedServers, 2)
	assert.Equal(t, "node-b", c.SeedServers[0].NodeID)
	assert.Equal(t, 6000, c.SeedServers[1].Port)
}

func TestLoadParsesIsBalancer(t *testing.T) {
	path := writeProps(t, "server.id=balancer\nis.balancer=true\nbalancer.port=5001\n")
	c, err := Load(path)
	require.NoError(t, err)

	assert.True(t, c.IsBalancer)
	assert.Equal(t, 5001, c.BalancerPort)
}

func TestLoadRejectsMalformedSeedEntry(t *testing.T) {
	path := writeProps(t, "seed.servers=not-a-valid-entry\n")
	_, err := Load(path)
	assert.Error(t, err)
}
