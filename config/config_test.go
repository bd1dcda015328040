package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYROLL_AUTH_JWT_SECRET", "dev-secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "payroll-engine", cfg.App.Name)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Payroll.Workers)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Scheduler.IncludePrevious)

	cc, err := cfg.Commission()
	require.NoError(t, err)
	assert.Equal(t, "15", cc.Rate.String())
	assert.Equal(t, "500", cc.SeniorBaseAmount.String())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := writeConfig(t, `
app:
  port: "9090"
database:
  driver: memory
auth:
  disabled: true
payroll:
  commission_rate: "12.5"
  timezone: Europe/Paris
  workers: 2
scheduler:
  enabled: true
  interval: 15m
log:
  level: debug
`)
	t.Setenv("PAYROLL_PAYROLL_WORKERS", "8")
	t.Setenv("PAYROLL_LOG_FORMAT", "console")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.True(t, cfg.Auth.Disabled)
	assert.Equal(t, 8, cfg.Payroll.Workers, "env wins over the file")
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)

	cc, err := cfg.Commission()
	require.NoError(t, err)
	assert.Equal(t, "12.5", cc.Rate.String())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{
			name: "unknown driver",
			yaml: "database:\n  driver: mongo\nauth:\n  disabled: true\n",
		},
		{
			name: "postgres without dsn",
			yaml: "database:\n  driver: postgres\nauth:\n  disabled: true\n",
		},
		{
			name: "missing jwt secret",
			yaml: "database:\n  driver: memory\n",
		},
		{
			name: "negative commission rate",
			yaml: "auth:\n  disabled: true\npayroll:\n  commission_rate: \"-1\"\n",
		},
		{
			name: "bad timezone",
			yaml: "auth:\n  disabled: true\npayroll:\n  timezone: Mars/Olympus\n",
		},
		{
			name: "auth disabled in production",
			yaml: "app:\n  env: production\nauth:\n  disabled: true\n",
		},
		{
			name: "short secret in production",
			yaml: "app:\n  env: production\n",
			env:  map[string]string{"PAYROLL_AUTH_JWT_SECRET": "short"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "app: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}
