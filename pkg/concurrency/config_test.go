package concurrency

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_CONCURRENT", "7")
	t.Setenv("DAEDALUS_CONCURRENCY_MULTIPLIER", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	config := LoadConfig()
	assert.Equal(t, 7, config.MaxConcurrent)
	assert.Equal(t, ConfigSourceEnvVar, config.Source)
	assert.False(t, config.IsKubernetes)
}

func TestLoadConfigMultiplier(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_CONCURRENT", "")
	t.Setenv("DAEDALUS_CONCURRENCY_MULTIPLIER", "3")

	config := LoadConfig()
	assert.Equal(t, config.EffectiveCPUs*3, config.MaxConcurrent)
	assert.Equal(t, ConfigSourceEnvVar, config.Source)
}

func TestLoadConfigAutoDetect(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_CONCURRENT", "")
	t.Setenv("DAEDALUS_CONCURRENCY_MULTIPLIER", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	config := LoadConfig()
	assert.Equal(t, ConfigSourceAutoDetect, config.Source)
	assert.Equal(t, runtime.GOMAXPROCS(0)*4, config.MaxConcurrent)
}

func TestLoadConfigKubernetesDefaults(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_CONCURRENT", "")
	t.Setenv("DAEDALUS_CONCURRENCY_MULTIPLIER", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	config := LoadConfig()
	assert.True(t, config.IsKubernetes)
	assert.Equal(t, runtime.GOMAXPROCS(0)*2, config.MaxConcurrent)
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DAEDALUS_MAX_CONCURRENT", "not-a-number")
	t.Setenv("DAEDALUS_CONCURRENCY_MULTIPLIER", "-2")
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	config := LoadConfig()
	assert.Equal(t, ConfigSourceAutoDetect, config.Source)
	assert.GreaterOrEqual(t, config.MaxConcurrent, 1)
}

func TestConfigString(t *testing.T) {
	config := &Config{MaxConcurrent: 4, IsKubernetes: true, EffectiveCPUs: 2, Source: ConfigSourceEnvVar}
	assert.Contains(t, config.String(), "MaxConcurrent: 4")
	assert.Contains(t, config.String(), "IsK8s: true")
}
