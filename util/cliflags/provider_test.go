package cliflags_test

import (
	"strings"
	"testing"
	"time"

	"github.com/lambda-feedback/hellojoe/util/cliflags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func read(t *testing.T, args []string, cb func(string) string) map[string]any {
	t.Helper()

	var result map[string]any

	app := &cli.App{
		Name: "test",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "cores", Aliases: []string{"n"}, Value: 4},
			&cli.DurationFlag{Name: "retry-delay", Value: 10 * time.Second},
			&cli.StringSliceFlag{Name: "worker-args", Aliases: []string{"a"}},
			&cli.StringFlag{Name: "listen", EnvVars: []string{"CLIFLAGS_TEST_LISTEN"}},
			&cli.BoolFlag{Name: "h2c"},
		},
		Action: func(ctx *cli.Context) error {
			var err error
			result, err = cliflags.Provider(ctx, ".", cb).Read()
			return err
		},
	}

	require.NoError(t, app.Run(append([]string{"test"}, args...)))

	return result
}

func TestProvider_OnlySetFlags(t *testing.T) {
	mp := read(t, []string{"--retry-delay", "250ms"}, nil)

	assert.Equal(t, map[string]any{"retry-delay": 250 * time.Millisecond}, mp)
}

func TestProvider_Aliases(t *testing.T) {
	mp := read(t, []string{"-n", "2", "-a", "serve", "-a", "fast"}, nil)

	assert.Equal(t, 2, mp["cores"])
	assert.Equal(t, []string{"serve", "fast"}, mp["worker-args"])
}

func TestProvider_Env(t *testing.T) {
	t.Setenv("CLIFLAGS_TEST_LISTEN", "0.0.0.0:9000")

	mp := read(t, nil, nil)

	assert.Equal(t, "0.0.0.0:9000", mp["listen"])
}

func TestProvider_NestedKeys(t *testing.T) {
	transform := func(s string) string {
		if s == "h2c" {
			return "http.h2c"
		}
		return strings.ReplaceAll(s, "-", "_")
	}

	mp := read(t, []string{"--h2c", "--cores", "3"}, transform)

	assert.Equal(t, map[string]any{
		"cores": 3,
		"http":  map[string]any{"h2c": true},
	}, mp)
}
