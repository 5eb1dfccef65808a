package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:       AppConfig{Environment: "development"},
		Logger:    LoggerConfig{Level: "info"},
		Data:      DataConfig{BasePath: "/some/path"},
		Server:    ServerConfig{Port: "8080", ReadTimeout: 15 * time.Second},
		Mirror:    MirrorConfig{Enabled: true, Path: "/some/path/settings.json"},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_LogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
		cfg := validConfig()
		cfg.Logger.Level = level
		assert.NoError(t, cfg.Validate(), "level %s should be valid", level)
	}

	cfg := validConfig()
	cfg.Logger.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.RPS = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.RateLimit.Burst = -1
	assert.Error(t, cfg.Validate())
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("PREFHUB_TEST_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "PREFHUB_TEST_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "PREFHUB_TEST_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "PREFHUB_TEST_MISSING", "default"))
}

func TestGetBoolConfigValue(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"nonsense", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, getBoolConfigValue(tt.value, "UNSET", true), "value %q", tt.value)
	}

	// Empty everywhere falls back to the default.
	assert.True(t, getBoolConfigValue("", "UNSET", true))
	assert.False(t, getBoolConfigValue("", "UNSET", false))
}

func TestGetFloatConfigValue(t *testing.T) {
	assert.Equal(t, 2.5, getFloatConfigValue("2.5", "UNSET", 5))
	assert.Equal(t, 5.0, getFloatConfigValue("", "UNSET", 5))
	assert.Equal(t, 5.0, getFloatConfigValue("abc", "UNSET", 5))
}

func TestParseDurationValue(t *testing.T) {
	d, err := parseDurationValue("30s", "UNSET", "15s")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = parseDurationValue("", "UNSET", "15s")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)

	_, err = parseDurationValue("not-a-duration", "UNSET", "15s")
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expanded, err := expandPath("~/data", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), expanded)

	expanded, err = expandPath("", "/default/path")
	require.NoError(t, err)
	assert.Equal(t, "/default/path", expanded)

	expanded, err = expandPath("/abs/path", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", expanded)
}

func TestExpandMirrorPath_DefaultsUnderData(t *testing.T) {
	cfg := validConfig()
	cfg.Data.BasePath = "/var/lib/prefhub"
	cfg.Mirror.Path = ""

	require.NoError(t, cfg.expandMirrorPath())
	assert.Equal(t, "/var/lib/prefhub/settings.json", cfg.Mirror.Path)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nPREFHUB_ENVFILE_A=hello\nPREFHUB_ENVFILE_B=\"quoted\"\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("PREFHUB_ENVFILE_A", "")
	t.Setenv("PREFHUB_ENVFILE_B", "")
	os.Unsetenv("PREFHUB_ENVFILE_A")
	os.Unsetenv("PREFHUB_ENVFILE_B")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "hello", os.Getenv("PREFHUB_ENVFILE_A"))
	assert.Equal(t, "quoted", os.Getenv("PREFHUB_ENVFILE_B"))
}

func TestLoadEnvFile_MissingFile(t *testing.T) {
	err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadEnvFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("THIS IS NOT KEY VALUE\n"), 0o600))

	err := loadEnvFile(path)
	assert.Error(t, err)
}
