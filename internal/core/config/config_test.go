package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessionizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
database:
  dsn: postgres://localhost:5432/sessions?sslmode=disable
`

func TestLoad_DefaultsApply(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "release", cfg.Server.Mode)
	require.Equal(t, "30m", cfg.Run.SessionTimeout)
	require.Equal(t, 30*time.Minute, cfg.Run.Timeout())
	require.Equal(t, []string{"a", "b", "c"}, cfg.Run.ActionCodes)
	require.Equal(t, 5, cfg.Run.LookbackDays)
	require.Equal(t, 6, cfg.Run.ExtendedLookbackDays)
	require.Equal(t, ViolationRejectRow, cfg.Run.OnSchemaViolation)
	require.Equal(t, 14, cfg.Run.RetentionDays)
	require.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
database:
  dsn: postgres://localhost:5432/sessions
run:
  session_timeout: 45m
  action_codes: [click, scroll]
  lookback_days: 3
  extended_lookback_days: 4
  on_schema_violation: reject_batch
`))
	require.NoError(t, err)

	require.Equal(t, 45*time.Minute, cfg.Run.Timeout())
	require.Equal(t, []string{"click", "scroll"}, cfg.Run.ActionCodes)
	require.Equal(t, 3, cfg.Run.LookbackDays)
	require.Equal(t, 4, cfg.Run.ExtendedLookbackDays)
	require.Equal(t, ViolationRejectBatch, cfg.Run.OnSchemaViolation)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SESSIONIZER_RUN__SESSION_TIMEOUT", "15m")
	t.Setenv("SESSIONIZER_SERVER__PORT", "9090")

	cfg, err := Load(writeConfigFile(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, cfg.Run.Timeout())
	require.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_LoadsProfiles(t *testing.T) {
	profileDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(profileDir, "video.yaml"), []byte(`
product_code: video
session_timeout: 10m
`), 0o644))

	cfg, err := Load(writeConfigFile(t, `
database:
  dsn: postgres://localhost:5432/sessions
run:
  profile_dir: `+profileDir+`
`))
	require.NoError(t, err)
	require.Len(t, cfg.Profiles, 1)
	require.Equal(t, "video", cfg.Profiles[0].ProductCode)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing dsn", ``, "database.dsn"},
		{"bad timeout", minimalConfig + "run:\n  session_timeout: never\n", "session_timeout"},
		{"zero lookback", minimalConfig + "run:\n  lookback_days: 0\n", "lookback_days"},
		{
			"extended below lookback",
			minimalConfig + "run:\n  lookback_days: 5\n  extended_lookback_days: 4\n",
			"extended_lookback_days",
		},
		{
			"lookback beyond retention",
			minimalConfig + "run:\n  lookback_days: 13\n  extended_lookback_days: 14\n  retention_days: 14\n",
			"retention_days",
		},
		{"bad violation policy", minimalConfig + "run:\n  on_schema_violation: shrug\n", "on_schema_violation"},
		{"bad mode", minimalConfig + "server:\n  mode: production\n", "server.mode"},
		{"bad port", minimalConfig + "server:\n  port: 0\n", "server.port"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
