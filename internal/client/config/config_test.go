package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultSourceURL, cfg.DefaultSourceURL)
	assert.Equal(t, StateFileName, filepath.Base(cfg.StatePath))
	assert.True(t, filepath.IsAbs(cfg.DefaultMapPath))
	assert.Equal(t, filepath.Join("base", "internal", "maps"), DefaultMapSubdir)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Empty(t, cfg.SourceURL)
	assert.Empty(t, cfg.MapPath)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_NormalizesPaths(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		StatePath:      filepath.Join(tmp, "x", "..", ".reflexMaps"),
		MapPath:        filepath.Join(tmp, "maps", "."),
		DefaultMapPath: tmp,
		LogLevel:       " DEBUG ",
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(tmp, ".reflexMaps"), cfg.StatePath)
	assert.Equal(t, filepath.Join(tmp, "maps"), cfg.MapPath)
	assert.Equal(t, DefaultSourceURL, cfg.DefaultSourceURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	tmp := t.TempDir()
	valid := func() *Config {
		return &Config{
			StatePath:      filepath.Join(tmp, ".reflexMaps"),
			DefaultMapPath: tmp,
		}
	}

	t.Run("no state path", func(t *testing.T) {
		cfg := valid()
		cfg.StatePath = ""
		assert.ErrorIs(t, cfg.Validate(), ErrNoStatePath)
	})

	t.Run("no map path", func(t *testing.T) {
		cfg := valid()
		cfg.DefaultMapPath = ""
		assert.ErrorIs(t, cfg.Validate(), ErrNoMapPath)
	})

	t.Run("bad source url", func(t *testing.T) {
		cfg := valid()
		cfg.SourceURL = "ftp://maps.example.com/"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source url")
	})

	t.Run("source url without host", func(t *testing.T) {
		cfg := valid()
		cfg.SourceURL = "http:///api/"
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative timeout", func(t *testing.T) {
		cfg := valid()
		cfg.Timeout = -time.Second
		assert.Error(t, cfg.Validate())
	})
}
