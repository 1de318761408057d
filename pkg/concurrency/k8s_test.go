package concurrency

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeForKubernetes(t *testing.T) {
	undo := InitializeForKubernetes()
	require.NotNil(t, undo)
	undo()

	assert.Equal(t, runtime.GOMAXPROCS(0), GetEffectiveCPUs())
	assert.GreaterOrEqual(t, GetEffectiveCPUs(), 1)
}
