package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAndAccessors(t *testing.T) {
	Init("execd-test", "dev", "debug")

	require.NotNil(t, L())
	require.NotNil(t, S())
	assert.NotPanics(t, Sync)
}

func TestNamed(t *testing.T) {
	Init("execd-test", "dev", "info")

	named := Named("tracker")
	require.NotNil(t, named)
	assert.NotSame(t, L(), named)
	assert.NotPanics(t, func() {
		named.Info("component logger ready")
	})
}
