package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadWith("", envMap(nil))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 100, cfg.Batch.RetryAttempts)
	require.Equal(t, 10*time.Second, cfg.Batch.RetryDelay)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ccapi:
  baseURL: https://file.example.com
  tokenURL: https://file.example.com/oauth/token
  clientID: file-id
  clientSecret: file-secret
rates:
  static:
    eur: "0.85"
batch:
  lookbackDays: 7
  retryDelay: 2s
logLevel: debug
`), 0o600))

	cfg, err := LoadWith(path, envMap(map[string]string{
		"CCAPI_BASE_URL": "https://env.example.com",
		"LOG_LEVEL":      "warn",
	}))
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com", cfg.CCAPI.BaseURL)
	require.Equal(t, "file-id", cfg.CCAPI.ClientID)
	require.Equal(t, 7, cfg.Batch.LookbackDays)
	require.Equal(t, 2*time.Second, cfg.Batch.RetryDelay)
	require.Equal(t, 100, cfg.Batch.RetryAttempts)
	require.Equal(t, "warn", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	rates, err := cfg.StaticRates()
	require.NoError(t, err)
	require.True(t, rates["EUR"].Equal(decimal.RequireFromString("0.85")))
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadWith(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	require.Error(t, err)
}

func TestValidateReportsMissingCredentials(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Rates.Static = map[string]string{"USD": "not-a-rate"}
	err := cfg.Validate()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []string{
		"CCAPI.BaseURL",
		"CCAPI.TokenURL",
		"CCAPI.ClientID",
		"CCAPI.ClientSecret",
		"Rates.Static",
	}, verr.Fields())
}
