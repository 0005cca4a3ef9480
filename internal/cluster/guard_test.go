package cluster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGuard_RePanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	assert.PanicsWithValue(t, "boom", func() {
		guard(zap.New(core), func() error {
			panic("boom")
		})
	})

	assert.Equal(t, 1, logs.FilterMessage("uncaught panic in worker").Len())
}

func TestGuard_ReturnsError(t *testing.T) {
	errApp := errors.New("app failed")

	err := guard(zap.NewNop(), func() error {
		return errApp
	})

	assert.ErrorIs(t, err, errApp)
}
