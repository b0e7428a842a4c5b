package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiandb/meridian/pkg/config"
)

func setenv(t *testing.T, key, value string) {
	t.Helper()
	old, hadOld := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if hadOld {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestEnabledFallsBackToDefaultWhenUnset(t *testing.T) {
	c := config.New()
	f := config.Flag{Name: "some_flag", DefaultOn: true}
	assert.True(t, c.Enabled(f))
}

func TestEnabledReadsEnvOverrideAtCallTime(t *testing.T) {
	c := config.New()
	f := config.Flag{Name: "hnsw_index", DefaultOn: true}
	assert.True(t, c.Enabled(f))

	setenv(t, "SURREAL_HNSW_INDEX", "false")
	assert.False(t, c.Enabled(f), "flag must be read fresh, not cached from the first call")
}

func TestStringAndIntOverrides(t *testing.T) {
	c := config.New()
	assert.Equal(t, "default", c.String("some_string", "default"))
	assert.Equal(t, 7, c.Int("some_int", 7))

	setenv(t, "SURREAL_SOME_STRING", "override")
	setenv(t, "SURREAL_SOME_INT", "42")
	assert.Equal(t, "override", c.String("some_string", "default"))
	assert.Equal(t, 42, c.Int("some_int", 7))
}
