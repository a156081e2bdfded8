package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minSessionTTL keeps a misconfigured TTL from signing users out between requests.
const minSessionTTL = time.Minute

// layers returns the config files to merge, lowest priority first.
func layers() []string {
	paths := []string{"/etc/sprintdesk/sprintdesk.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sprintdesk", "sprintdesk.yaml"))
	}
	paths = append(paths, "sprintdesk.yaml")
	if p := os.Getenv("SPRINTDESK_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	return paths
}

// Load merges every config layer over the defaults, then the environment:
// /etc/sprintdesk < ~/.config/sprintdesk < ./sprintdesk.yaml < $SPRINTDESK_CONFIG < SPRINTDESK_* variables.
func Load() (*Config, error) {
	return load(layers()...)
}

// LoadFromFile is Load restricted to a single file.
func LoadFromFile(path string) (*Config, error) {
	return load(path)
}

func load(paths ...string) (*Config, error) {
	cfg := Defaults()
	for _, path := range paths {
		applied, err := mergeFile(cfg, path)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
		if applied {
			cfg.Sources = append(cfg.Sources, path)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// mergeFile decodes path over cfg. Keys absent from the file keep their
// value; unknown keys are rejected so a typo cannot silently fall back to a
// default. A missing file is not an error.
func mergeFile(cfg *Config, path string) (bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the fixed layer list or the --config flag
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading file: %w", err)
	}
	slog.Debug("loading config file", "path", path)

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("parsing YAML: %w", err)
	}
	return true, nil
}

// envVar binds one environment variable to a config field. Aliases are the
// variable names of earlier deployments, used only when the main one is unset.
type envVar struct {
	name    string
	aliases []string
	set     func(cfg *Config, v string) error
}

var envVars = []envVar{
	{name: "SPRINTDESK_GITHUB_CLIENT_ID", aliases: []string{"GITHUB_ID"},
		set: func(c *Config, v string) error { c.GitHub.ClientID = v; return nil }},
	{name: "SPRINTDESK_GITHUB_CLIENT_SECRET", aliases: []string{"GITHUB_SECRET"},
		set: func(c *Config, v string) error { c.GitHub.ClientSecret = v; return nil }},
	{name: "SPRINTDESK_GITHUB_API_URL",
		set: func(c *Config, v string) error { c.GitHub.APIURL = v; return nil }},
	{name: "SPRINTDESK_TEACHER_EMAILS", aliases: []string{"TEACHER_EMAILS"},
		set: func(c *Config, v string) error { c.Auth.TeacherEmails = splitList(v); return nil }},
	{name: "SPRINTDESK_PUBLIC_URL",
		set: func(c *Config, v string) error { c.Server.PublicURL = v; return nil }},
	{name: "SPRINTDESK_DATABASE_PATH",
		set: func(c *Config, v string) error { c.Database.Path = v; return nil }},
	{name: "SPRINTDESK_LOG_LEVEL",
		set: func(c *Config, v string) error { c.Server.LogLevel = v; return nil }},
	{name: "SPRINTDESK_PORT", set: func(c *Config, v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not a number: %q", v)
		}
		c.Server.Port = port
		return nil
	}},
	{name: "SPRINTDESK_SESSION_TTL", set: func(c *Config, v string) error {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Auth.SessionTTL = ttl
		return nil
	}},
}

// applyEnv overlays the environment on cfg. Empty variables count as unset.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		for _, name := range append([]string{ev.name}, ev.aliases...) {
			v, ok := lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := ev.set(cfg, v); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if name != ev.name {
				slog.Warn("deprecated environment variable", "name", name, "use", ev.name)
			}
			break
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalize rewrites values into the form the rest of the program expects.
func normalize(cfg *Config) {
	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Auth.KeyDir = ExpandHome(cfg.Auth.KeyDir)
	cfg.Server.LogFile = ExpandHome(cfg.Server.LogFile)
	cfg.Server.LogLevel = strings.ToLower(cfg.Server.LogLevel)
	cfg.Server.PublicURL = strings.TrimSuffix(cfg.Server.PublicURL, "/")

	// The GitHub client resolves endpoints relative to the API URL.
	if cfg.GitHub.APIURL != "" && !strings.HasSuffix(cfg.GitHub.APIURL, "/") {
		cfg.GitHub.APIURL += "/"
	}

	emails := cfg.Auth.TeacherEmails[:0]
	for _, e := range cfg.Auth.TeacherEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			emails = append(emails, e)
		}
	}
	cfg.Auth.TeacherEmails = emails
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Validate reports every problem of cfg at once.
func (cfg *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		fail("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host == "0.0.0.0" {
		fail("server.host must not be 0.0.0.0: sprintdesk listens on localhost behind a reverse proxy")
	}
	switch cfg.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		fail("server.log_level must be debug, info, warn or error, got %q", cfg.Server.LogLevel)
	}
	if cfg.Server.PublicURL != "" {
		if err := checkHTTPURL(cfg.Server.PublicURL); err != nil {
			fail("server.public_url: %v", err)
		}
	}

	if cfg.Auth.SessionTTL < minSessionTTL {
		fail("auth.session_ttl must be at least %s, got %s", minSessionTTL, cfg.Auth.SessionTTL)
	}
	for _, e := range cfg.Auth.TeacherEmails {
		if !strings.Contains(e, "@") {
			fail("auth.teacher_emails: %q is not an e-mail address", e)
		}
	}

	if cfg.Database.Path == "" {
		fail("database.path is required")
	}

	// Token refresh needs both halves of the OAuth app.
	if (cfg.GitHub.ClientID == "") != (cfg.GitHub.ClientSecret == "") {
		fail("github.client_id and github.client_secret must be set together")
	}
	if err := checkHTTPURL(cfg.GitHub.APIURL); err != nil {
		fail("github.api_url: %v", err)
	}
	if err := checkHTTPURL(cfg.GitHub.TokenURL); err != nil {
		fail("github.token_url: %v", err)
	}
	if cfg.GitHub.Timeout <= 0 {
		fail("github.timeout must be positive, got %s", cfg.GitHub.Timeout)
	}
	if cfg.GitHub.EventsPageSize < 1 || cfg.GitHub.EventsPageSize > 100 {
		fail("github.events_page_size must be between 1 and 100, got %d", cfg.GitHub.EventsPageSize)
	}

	switch cfg.Sync.IssueState {
	case "all", "open", "closed":
	default:
		fail("sync.issue_state must be all, open or closed, got %q", cfg.Sync.IssueState)
	}
	if cfg.Sync.ClassConcurrency < 1 {
		fail("sync.class_concurrency must be at least 1, got %d", cfg.Sync.ClassConcurrency)
	}

	return errors.Join(errs...)
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
