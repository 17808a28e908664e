package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("LMCTX_ENDPOINT replaces endpoint", func(t *testing.T) {
		t.Setenv("LMCTX_ENDPOINT", "http://gpu-box:1234")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://gpu-box:1234", cfg.Endpoint)
	})

	t.Run("LMCTX_MODEL replaces model", func(t *testing.T) {
		t.Setenv("LMCTX_MODEL", "deepseek-coder-v2")

		cfg := &Config{Model: "gemma"}
		cfg.applyEnvOverrides()

		assert.Equal(t, "deepseek-coder-v2", cfg.Model)
	})

	t.Run("invalid LMCTX_MAX_FILE_READ_CHARS is ignored", func(t *testing.T) {
		t.Setenv("LMCTX_MAX_FILE_READ_CHARS", "lots")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 1200, cfg.MaxFileReadChars)
	})

	t.Run("valid LMCTX_MAX_FILE_READ_CHARS applies", func(t *testing.T) {
		t.Setenv("LMCTX_MAX_FILE_READ_CHARS", "4000")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 4000, cfg.MaxFileReadChars)
	})

	t.Run("empty env leaves config untouched", func(t *testing.T) {
		t.Setenv("LMCTX_ENDPOINT", "")
		t.Setenv("LMCTX_MODEL", "")
		t.Setenv("LMCTX_LOG_LEVEL", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, DefaultConfig(), cfg)
	})
}
