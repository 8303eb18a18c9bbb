package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVarsUsesValueWhenSet(t *testing.T) {
	os.Setenv("KVGATE_TEST_VAR", "fromenv")
	defer os.Unsetenv("KVGATE_TEST_VAR")

	assert.Equal(t, "fromenv", SubstituteEnvVars("${KVGATE_TEST_VAR}"))
}

func TestSubstituteEnvVarsFallsBackToDefault(t *testing.T) {
	os.Unsetenv("KVGATE_MISSING_VAR")
	assert.Equal(t, "fallback", SubstituteEnvVars("${KVGATE_MISSING_VAR:fallback}"))
}

func TestSubstituteEnvVarsInConfigWalksNestedFields(t *testing.T) {
	os.Setenv("KVGATE_TEST_NS", "appB:")
	defer os.Unsetenv("KVGATE_TEST_NS")

	cfg := &Config{
		Namespace: "${KVGATE_TEST_NS}",
		Logging:   &LoggingConfig{Level: "${KVGATE_MISSING_LEVEL:warn}"},
	}
	SubstituteEnvVarsInConfig(cfg)

	assert.Equal(t, "appB:", cfg.Namespace)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	os.Unsetenv("KVGATE_ENV")
	os.Unsetenv("ENVIRONMENT")
	assert.Equal(t, "development", GetEnvironment())
}

func TestGetEnvironmentPrefersKVGateEnv(t *testing.T) {
	os.Setenv("KVGATE_ENV", "Production")
	defer os.Unsetenv("KVGATE_ENV")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
}
