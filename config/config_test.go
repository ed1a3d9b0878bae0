package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nginxgo/reactorcore/listener"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.WorkerConnections)
	assert.True(t, cfg.AcceptMutex)
}

func TestLoadInlineDirectivesOverrideDefaults(t *testing.T) {
	cfg, err := Load("", `worker_connections = 2048`)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.WorkerConnections)
}

func TestValidateRejectsTooFewWorkerConnections(t *testing.T) {
	cfg := defaults()
	cfg.WorkerConnections = 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateListenAddresses(t *testing.T) {
	cfg := defaults()
	cfg.Listen = []listener.Options{
		{Address: "0.0.0.0:8080"},
		{Address: "0.0.0.0:8080"},
	}
	assert.Error(t, cfg.Validate())
}
