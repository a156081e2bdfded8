package config

import (
	"slices"
	"strings"
	"time"
)

// Config is the root configuration for sprintdesk.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	GitHub   GitHubConfig   `yaml:"github"`
	Sync     SyncConfig     `yaml:"sync"`
	MCP      MCPConfig      `yaml:"mcp"`

	// Sources lists the files that were merged, lowest priority first.
	Sources []string `yaml:"-"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

type AuthConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl"`
	// KeyDir holds the session hashing key.
	KeyDir string `yaml:"key_dir"`
	// TeacherEmails get the teacher role when their account is created.
	TeacherEmails []string `yaml:"teacher_emails"`
}

// IsTeacherEmail reports whether email is listed in teacher_emails.
func (a AuthConfig) IsTeacherEmail(email string) bool {
	return slices.Contains(a.TeacherEmails, strings.ToLower(strings.TrimSpace(email)))
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GitHubConfig configures the upstream API and the OAuth app used for token refresh.
type GitHubConfig struct {
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	APIURL         string        `yaml:"api_url"`
	TokenURL       string        `yaml:"token_url"`
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	EventsPageSize int           `yaml:"events_page_size"`
}

type SyncConfig struct {
	ClassConcurrency int    `yaml:"class_concurrency"`
	IssueState       string `yaml:"issue_state"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8430,
			LogLevel: "info",
		},
		Auth: AuthConfig{
			SessionTTL: 30 * 24 * time.Hour,
			KeyDir:     "~/.config/sprintdesk",
		},
		Database: DatabaseConfig{
			Path: "~/.config/sprintdesk/sprintdesk.db",
		},
		GitHub: GitHubConfig{
			APIURL:         "https://api.github.com/",
			TokenURL:       "https://github.com/login/oauth/access_token",
			UserAgent:      "sprintdesk",
			Timeout:        30 * time.Second,
			EventsPageSize: 100,
		},
		Sync: SyncConfig{
			ClassConcurrency: 4,
			IssueState:       "all",
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}
