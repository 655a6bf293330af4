package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const clusterFile = `
cluster:
  master_address: 192.0.2.1
  firm_sync: true
  nodes:
    - address: 192.0.2.1
      port: 20401
      swap_lock: true
    - id: left
      address: 192.0.2.2
      port: 20402
sync:
  timeout: 10s
capture:
  threads: 4
  format: tga
`

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := Load(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, c.Sync.Timeout)
		assert.Equal(t, 100*time.Millisecond, c.Sync.WatchdogInterval)
		assert.Equal(t, 8, c.Capture.Threads)
		assert.Equal(t, -1, c.Local.Node)
		require.Len(t, c.Cluster.Nodes, 1)
	})
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cluster.yaml")
		require.NoError(t, os.WriteFile(path, []byte(clusterFile), 0o600))
		c, err := Load(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.1", c.Cluster.MasterAddress)
		assert.True(t, c.Cluster.FirmSync)
		require.Len(t, c.Cluster.Nodes, 2)
		assert.True(t, c.Cluster.Nodes[0].SwapLock)
		assert.Equal(t, "left", c.Cluster.Nodes[1].ID)
		assert.Equal(t, 10*time.Second, c.Sync.Timeout)
		assert.Equal(t, 4, c.Capture.Threads)
		assert.Equal(t, "tga", c.Capture.Format)
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv("FRAMELOCK_SYNC_TIMEOUT", "2s")
		c, err := Load(viper.New(), "")
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, c.Sync.Timeout)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	c := Config{
		Cluster: ClusterConfig{Nodes: []NodeConfig{{Port: 70000}}},
		Sync:    SyncConfig{WaitPolicy: "spin"},
		Local:   LocalConfig{Node: 3},
	}
	err := c.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 8)
}
