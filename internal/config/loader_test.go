package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sprintdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults_SetsExpectedValues(t *testing.T) {
	t.Parallel()

	cfg := Defaults()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8430, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "https://api.github.com/", cfg.GitHub.APIURL)
	assert.Equal(t, 100, cfg.GitHub.EventsPageSize)
	assert.Equal(t, 4, cfg.Sync.ClassConcurrency)
	assert.Equal(t, "all", cfg.Sync.IssueState)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.SessionTTL)
	assert.True(t, cfg.MCP.Enabled)
}

func TestLoadFromFile_ParsesYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9000
  public_url: "https://scrum.school.test"
  log_level: "debug"

github:
  client_id: "Iv1.abc"
  client_secret: "shh"
  api_url: "https://ghe.school.test/api/v3"
  timeout: 10s
  events_page_size: 50

sync:
  class_concurrency: 2
  issue_state: open

mcp:
  enabled: false
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://scrum.school.test", cfg.Server.PublicURL)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "Iv1.abc", cfg.GitHub.ClientID)
	assert.Equal(t, "https://ghe.school.test/api/v3/", cfg.GitHub.APIURL, "trailing slash added")
	assert.Equal(t, 10*time.Second, cfg.GitHub.Timeout)
	assert.Equal(t, 50, cfg.GitHub.EventsPageSize)
	assert.Equal(t, 2, cfg.Sync.ClassConcurrency)
	assert.Equal(t, "open", cfg.Sync.IssueState)
	assert.False(t, cfg.MCP.Enabled)
	assert.Equal(t, []string{path}, cfg.Sources)
}

func TestLoadFromFile_ExpandsEnvVars(t *testing.T) {
	t.Setenv("SPRINTDESK_TEST_SECRET", "super-secret-value")

	path := writeConfig(t, `
github:
  client_id: "Iv1.abc"
  client_secret: "${SPRINTDESK_TEST_SECRET}"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-value", cfg.GitHub.ClientSecret)
}

func TestLoadFromFile_EnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("SPRINTDESK_GITHUB_CLIENT_ID", "from-env")

	path := writeConfig(t, `
github:
  client_id: "from-file"
  client_secret: "shh"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.GitHub.ClientID)
}

func TestLoadFromFile_RejectsBindAllInterfaces(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeConfig(t, `
server:
  host: "0.0.0.0"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0.0.0.0")
}

func TestLoadFromFile_RejectsInvalidValues(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"port":              "server:\n  port: 99999\n",
		"log_level":         "server:\n  log_level: verbose\n",
		"issue_state":       "sync:\n  issue_state: merged\n",
		"class_concurrency": "sync:\n  class_concurrency: 0\n",
		"events_page_size":  "github:\n  events_page_size: 500\n",
		"client_secret":     "github:\n  client_id: Iv1.abc\n",
		"api_url":           "github:\n  api_url: ghe.school.test\n",
		"timeout":           "github:\n  timeout: 0s\n",
		"session_ttl":       "auth:\n  session_ttl: 1s\n",
		"teacher_emails":    "auth:\n  teacher_emails: [grace]\n",
		"public_url":        "server:\n  public_url: /scrum\n",
	}
	for field, content := range cases {
		t.Run(field, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromFile(writeConfig(t, content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), field)
		})
	}
}

func TestLoadFromFile_NonexistentFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromFile("/tmp/sprintdesk-nonexistent-config-file.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8430, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadFromFile_InvalidYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeConfig(t, "{{invalid yaml:::"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing YAML")
}

func TestLoadFromFile_PartialOverride_KeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromFile(writeConfig(t, `
server:
  port: 9999
`))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "default host should be preserved")
	assert.Equal(t, 4, cfg.Sync.ClassConcurrency, "default class_concurrency should be preserved")
}

func TestLoadFromFile_ExpandsHomeInPaths(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := LoadFromFile(writeConfig(t, `
database:
  path: "~/data/sprintdesk.db"
`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data/sprintdesk.db"), cfg.Database.Path)
}

func TestExpandHome_ReplacesLeadingTilde(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "some/path"), ExpandHome("~/some/path"))
}

func TestExpandHome_LeavesAbsolutePathsUnchanged(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/absolute/path", ExpandHome("/absolute/path"))
}

func TestLoadFromFile_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeConfig(t, `
server:
  port: 0
sync:
  class_concurrency: 0
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "sync.class_concurrency")
}

func TestLoadFromFile_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(writeConfig(t, `
github:
  event_page_size: 50
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event_page_size")
}

func TestLoadFromFile_EmptyFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "")
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8430, cfg.Server.Port)
	assert.Equal(t, []string{path}, cfg.Sources)
}

func TestLoad_LaterLayersWin(t *testing.T) {
	t.Parallel()

	base := writeConfig(t, `
server:
  port: 9000
sync:
  class_concurrency: 2
`)
	override := writeConfig(t, `
server:
  port: 9100
`)
	cfg, err := load(base, override, filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Sync.ClassConcurrency, "keys absent from the later layer are kept")
	assert.Equal(t, []string{base, override}, cfg.Sources)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"GITHUB_ID":                       "legacy-id",
		"GITHUB_SECRET":                   "legacy-secret",
		"SPRINTDESK_GITHUB_CLIENT_SECRET": "new-secret",
		"TEACHER_EMAILS":                  " Grace@School.test, ,alan@school.test",
		"SPRINTDESK_PORT":                 "9200",
		"SPRINTDESK_SESSION_TTL":          "12h",
		"SPRINTDESK_LOG_LEVEL":            "",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Defaults()
	require.NoError(t, applyEnv(cfg, lookup))
	normalize(cfg)

	assert.Equal(t, "legacy-id", cfg.GitHub.ClientID, "alias used when the main name is unset")
	assert.Equal(t, "new-secret", cfg.GitHub.ClientSecret, "main name wins over its alias")
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "info", cfg.Server.LogLevel, "empty variables are ignored")
	assert.Equal(t, []string{"grace@school.test", "alan@school.test"}, cfg.Auth.TeacherEmails)
	assert.True(t, cfg.Auth.IsTeacherEmail("GRACE@school.test "))
	assert.False(t, cfg.Auth.IsTeacherEmail("ada@school.test"))
	require.NoError(t, cfg.Validate())

	err := applyEnv(Defaults(), func(k string) (string, bool) {
		return "soon", k == "SPRINTDESK_SESSION_TTL"
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPRINTDESK_SESSION_TTL")
}
