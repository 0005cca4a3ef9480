package shell_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lambda-feedback/hellojoe/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func shutdownWith(code int) fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, s fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return s.Shutdown(fx.ExitCode(code))
			},
		})
	})
}

func TestShell_Run_ExitCodeZero(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), shutdownWith(0))

	assert.NoError(t, err)
}

func TestShell_Run_ExitCode(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), shutdownWith(3))

	code, ok := shell.ExitCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, 3, code)

	var exitErr *shell.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode)
}

func TestShell_Run_StartFailure(t *testing.T) {
	s := shell.New(zap.NewNop())

	err := s.Run(context.Background(), fx.Invoke(func() error {
		return errors.New("boom")
	}))

	var exitErr *shell.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode)
}

func TestShell_Run_SuppliesContextAndLogger(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")

	var gotCtx context.Context
	var gotLog *zap.Logger

	s := shell.New(zap.NewNop(), fx.Invoke(func(ctx context.Context, log *zap.Logger) {
		gotCtx = ctx
		gotLog = log
	}))

	require.NoError(t, s.Run(ctx, shutdownWith(0)))

	assert.Equal(t, "value", gotCtx.Value(key{}))
	assert.NotNil(t, gotLog)
}

func TestExitCodeOf(t *testing.T) {
	_, ok := shell.ExitCodeOf(nil)
	assert.False(t, ok)

	_, ok = shell.ExitCodeOf(errors.New("other"))
	assert.False(t, ok)

	code, ok := shell.ExitCodeOf(fmt.Errorf("run: %w", shell.NewExitError(2)))
	assert.True(t, ok)
	assert.Equal(t, 2, code)
}
