package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `{
  "chunker": {"max_chunk_chars": 100, "overlap_chars": 10},
  "ai": {
    "generators": [{"provider": "gemini", "model": "g", "data": {"api_key": "${RAGDRIVE_TEST_KEY}"}}],
    "embedders": [{"provider": "gemini", "model": "e"}]
  }
}`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "info", cfg.LogConfig.Level)
	assert.Equal(t, "gdrive", cfg.Remote.Type)
	assert.Equal(t, 60, cfg.Remote.Timeout)
	assert.Equal(t, "document_cache.json", cfg.Cache.Key)
	assert.Equal(t, "local", cfg.Cache.Store.Type)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 4096, cfg.EmbedCache.LRUSize)
	assert.Equal(t, 30, cfg.EmbedCache.KeepDays)
	assert.Equal(t, 2000, cfg.Watch.DebounceMs)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no chunker":      `{"ai": {"generators": [{"provider":"p","model":"m"}], "embedders": [{"provider":"p","model":"m"}]}}`,
		"overlap too big": `{"chunker": {"max_chunk_chars": 10, "overlap_chars": 10}, "ai": {"generators": [{"provider":"p","model":"m"}], "embedders": [{"provider":"p","model":"m"}]}}`,
		"no embedder":     `{"chunker": {"max_chunk_chars": 10}, "ai": {"generators": [{"provider":"p","model":"m"}]}}`,
		"bad remote":      `{"chunker": {"max_chunk_chars": 10}, "remote": {"type": "ftp"}, "ai": {"generators": [{"provider":"p","model":"m"}], "embedders": [{"provider":"p","model":"m"}]}}`,
		"db without dsn":  `{"chunker": {"max_chunk_chars": 10}, "embed_cache": {"db": {"driver": "postgres"}}, "ai": {"generators": [{"provider":"p","model":"m"}], "embedders": [{"provider":"p","model":"m"}]}}`,
		"not json":        `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExpandsEnvFromDotenv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("RAGDRIVE_TEST_KEY=secret-from-env\n"), 0o600))
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(minimal), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("RAGDRIVE_TEST_KEY") })

	require.NoError(t, LoadEnvFile(envPath))
	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	data, ok := cfg.AI.Generators[0].Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "secret-from-env", data["api_key"])
}

func TestLoadEnvFile_MissingIsIgnored(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
	assert.NoError(t, LoadEnvFile(""))
}
