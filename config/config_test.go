package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lambda-feedback/hellojoe/config"
	"github.com/lambda-feedback/hellojoe/util/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, fileName string) (config.Config, error) {
	t.Helper()

	return conf.Parse[config.Config](conf.ParseOptions{
		Defaults:  config.DefaultConfig,
		EnvPrefix: config.EnvPrefix,
		FileName:  fileName,
		Schema:    config.Schema,
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := parse(t, "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "production", cfg.LogFormat)
	assert.Equal(t, 23, cfg.Supervisor.RetryThreshold)
	assert.Equal(t, 10*time.Second, cfg.Supervisor.RetryDelay)
	assert.Equal(t, 5*time.Second, cfg.Supervisor.FailureThreshold)
	assert.Equal(t, "localhost:8080", cfg.Supervisor.Listen)
	assert.Equal(t, 5*time.Second, cfg.Http.ShutdownTimeout)
	assert.False(t, cfg.Http.H2c)
	assert.NoError(t, cfg.Supervisor.Validate())
}

func TestParse_Env(t *testing.T) {
	t.Setenv("HELLOJOE_CORES", "3")
	t.Setenv("HELLOJOE_RETRY_DELAY", "250ms")
	t.Setenv("HELLOJOE_WORKER", "/usr/bin/worker")
	t.Setenv("HELLOJOE_WORKER_ARGS", "--port,9000")
	t.Setenv("HELLOJOE_HTTP__H2C", "true")

	cfg, err := parse(t, "")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Supervisor.Cores)
	assert.Equal(t, 250*time.Millisecond, cfg.Supervisor.RetryDelay)
	assert.Equal(t, "/usr/bin/worker", cfg.Supervisor.Worker)
	assert.Equal(t, []string{"--port", "9000"}, cfg.Supervisor.WorkerArgs)
	assert.True(t, cfg.Http.H2c)
	assert.True(t, cfg.Supervisor.Independent())
}

func TestParse_JsonFile(t *testing.T) {
	path := writeFile(t, "hellojoe.json", `{
		"cores": 2,
		"failure_threshold": "1s",
		"worker": "node",
		"worker_args": ["server.js"],
		"http": {"h2c": true}
	}`)

	cfg, err := parse(t, path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Supervisor.Cores)
	assert.Equal(t, time.Second, cfg.Supervisor.FailureThreshold)
	assert.Equal(t, "node", cfg.Supervisor.Worker)
	assert.Equal(t, []string{"server.js"}, cfg.Supervisor.WorkerArgs)
	assert.True(t, cfg.Http.H2c)
	// untouched keys keep their defaults
	assert.Equal(t, 23, cfg.Supervisor.RetryThreshold)
}

func TestParse_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "hellojoe.json", `{"cores": 2}`)
	t.Setenv("HELLOJOE_CORES", "4")

	cfg, err := parse(t, path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Supervisor.Cores)
}

func TestParse_JsonFile_SchemaViolation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "zero cores", content: `{"cores": 0}`},
		{name: "unknown key", content: `{"coers": 2}`},
		{name: "invalid duration", content: `{"retry_delay": "soon"}`},
		{name: "args not a list", content: `{"worker_args": "server.js"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "hellojoe.json", tt.content)

			_, err := parse(t, path)

			assert.ErrorIs(t, err, conf.ErrInvalidConfigFile)
		})
	}
}

func TestParse_DotenvFile(t *testing.T) {
	path := writeFile(t, "hellojoe.env", "HELLOJOE_CORES=6\nLISTEN=0.0.0.0:9090\nHTTP__H2C=true\n")

	cfg, err := parse(t, path)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Supervisor.Cores)
	assert.Equal(t, "0.0.0.0:9090", cfg.Supervisor.Listen)
	assert.True(t, cfg.Http.H2c)
}

func TestParse_DotenvFile_WorkerArgs(t *testing.T) {
	path := writeFile(t, "hellojoe.env", "WORKER=node\nWORKER_ARGS=server.js,--port,9000\n")

	cfg, err := parse(t, path)
	require.NoError(t, err)

	assert.Equal(t, "node", cfg.Supervisor.Worker)
	assert.Equal(t, []string{"server.js", "--port", "9000"}, cfg.Supervisor.WorkerArgs)
	assert.NoError(t, cfg.Supervisor.Validate())
}

func TestParse_MissingFile(t *testing.T) {
	_, err := parse(t, filepath.Join(t.TempDir(), "missing.json"))

	assert.Error(t, err)
}
