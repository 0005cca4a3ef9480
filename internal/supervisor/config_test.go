package supervisor_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/lambda-feedback/hellojoe/internal/supervisor"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	c := supervisor.DefaultConfig()

	assert.Equal(t, runtime.NumCPU(), c.Cores)
	assert.Equal(t, 23, c.RetryThreshold)
	assert.Equal(t, 10*time.Second, c.RetryDelay)
	assert.Equal(t, 5*time.Second, c.FailureThreshold)
	assert.False(t, c.Independent())
	assert.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*supervisor.Config)
		expected error
	}{
		{
			name:     "zero cores",
			modify:   func(c *supervisor.Config) { c.Cores = 0 },
			expected: supervisor.ErrInvalidPoolSize,
		},
		{
			name:     "negative delay",
			modify:   func(c *supervisor.Config) { c.RetryDelay = -time.Second },
			expected: supervisor.ErrInvalidThreshold,
		},
		{
			name:     "worker without args",
			modify:   func(c *supervisor.Config) { c.Worker = "/usr/bin/worker" },
			expected: supervisor.ErrMissingWorkerArgs,
		},
		{
			name:     "args without worker",
			modify:   func(c *supervisor.Config) { c.WorkerArgs = []string{"--port", "9000"} },
			expected: supervisor.ErrMissingWorkerCommand,
		},
		{
			name:     "shared socket without listen address",
			modify:   func(c *supervisor.Config) { c.Listen = "" },
			expected: supervisor.ErrMissingListenAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := supervisor.DefaultConfig()
			tt.modify(&c)

			assert.ErrorIs(t, c.Validate(), tt.expected)
		})
	}
}

func TestConfig_Validate_IndependentWorker(t *testing.T) {
	c := supervisor.DefaultConfig()
	c.Worker = "/usr/bin/worker"
	c.WorkerArgs = []string{"serve"}
	c.Listen = ""

	assert.True(t, c.Independent())
	assert.NoError(t, c.Validate())
}

func TestConfig_Policy(t *testing.T) {
	c := supervisor.DefaultConfig()

	assert.Equal(t, supervisor.Policy{
		RetryThreshold:   23,
		RetryDelay:       10 * time.Second,
		FailureThreshold: 5 * time.Second,
	}, c.Policy())
}
