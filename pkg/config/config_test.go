package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_STR", "value")
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD_INT", "forty")
	t.Setenv("CFG_BOOL", "true")
	t.Setenv("CFG_DUR", "150ms")
	t.Setenv("CFG_LIST", "a:1, b:2,,")

	assert.Equal(t, "value", GetEnv("CFG_STR", "x"))
	assert.Equal(t, "x", GetEnv("CFG_MISSING", "x"))
	assert.Equal(t, 42, GetEnvInt("CFG_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CFG_BAD_INT", 1))
	assert.True(t, GetEnvBool("CFG_BOOL", false))
	assert.Equal(t, 150*time.Millisecond, GetEnvDuration("CFG_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("CFG_MISSING", time.Second))
	assert.Equal(t, []string{"a:1", "b:2"}, GetEnvList("CFG_LIST", nil))
}

func TestLoadFile(t *testing.T) {
	type sample struct {
		Port    string        `yaml:"port"`
		Timeout time.Duration `yaml:"timeout"`
		Strict  bool          `yaml:"strict"`
	}

	path := filepath.Join(t.TempDir(), "service.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\ntimeout: 3s\nstrict: true\n"), 0o600))

	cfg := sample{Port: "8080"}
	require.NoError(t, LoadFile(path, &cfg))
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.True(t, cfg.Strict)
}

func TestLoadFile_MissingIsIgnored(t *testing.T) {
	cfg := struct{ Port string }{Port: "8080"}
	require.NoError(t, LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg))
	require.NoError(t, LoadFile("", &cfg))
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [unterminated"), 0o600))

	var cfg struct{ Port string }
	assert.Error(t, LoadFile(path, &cfg))
}
