package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knxscan.yaml")

	require.NoError(t, os.WriteFile(path, []byte("workers: 20\niface: eth0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Workers)
	assert.Equal(t, "eth0", cfg.Iface)
	assert.Equal(t, 2*time.Second, cfg.DescribeTimeout)
}

func Test_LoadRejectsNonPositiveWorkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knxscan.yaml")

	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func Test_LoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/knxscan.yaml")
	assert.Error(t, err)
}
