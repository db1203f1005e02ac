package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deployhook/internal/event"
	"deployhook/internal/security"
	"deployhook/pkg/cmdutil"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 3000
	DefaultGitBinary = "git"
	DefaultBranch    = "main"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the decoder from the file extension. TOML is the default.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// LoadConfig reads, decodes and validates a configuration file.
// Warnings are problems worth logging that do not prevent startup.
func LoadConfig(configPath string) (*Config, []string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, warnings, err := ParseConfig(data, FormatForPath(configPath))
	if err != nil {
		return nil, nil, err
	}

	if cfg.hasSecrets() {
		if err := security.ValidateSecurePermissions(configPath); err != nil {
			warnings = append(warnings, fmt.Sprintf("config file contains secrets: %v", err))
		}
	}

	return cfg, warnings, nil
}

// ParseConfig decodes raw configuration bytes and builds a validated Config.
func ParseConfig(data []byte, format Format) (*Config, []string, error) {
	var fc FileConfig

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return nil, nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported config format %q", format)
	}

	return Build(fc)
}

// Build validates a decoded configuration, applies defaults and returns the
// immutable Config.
func Build(fc FileConfig) (*Config, []string, error) {
	var problems []string
	var warnings []string

	if fc.Port < 0 || fc.Port > 65535 {
		problems = append(problems, fmt.Sprintf("  - port must be between 0 (default) and 65535, got %d", fc.Port))
	}
	if fc.RateLimit < 0 {
		problems = append(problems, fmt.Sprintf("  - rate_limit must not be negative, got %d", fc.RateLimit))
	}

	seen := make(map[string]int)
	for i, rc := range fc.Repos {
		problems = append(problems, ValidateRepoConfig(i, rc)...)

		if rc.Repo == "" {
			continue
		}
		if first, dup := seen[rc.Repo]; dup {
			problems = append(problems, fmt.Sprintf("  - repos[%d]: identifier '%s' duplicates repos[%d]", i, rc.Repo, first))
			continue
		}
		seen[rc.Repo] = i
	}

	if len(problems) > 0 {
		return nil, nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}

	cfg := &Config{
		Host:         fc.Host,
		Port:         fc.Port,
		GitBinary:    fc.Git,
		GitHubToken:  fc.GitHubToken,
		GitHubAPIURL: fc.GitHubAPIURL,
		RateLimit:    fc.RateLimit,
		Repos:        make([]*Repo, 0, len(fc.Repos)),
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.GitBinary == "" {
		cfg.GitBinary = DefaultGitBinary
	}

	for _, rc := range fc.Repos {
		repo, err := newRepo(rc)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid configuration for repo '%s': %w", rc.Repo, err)
		}
		if repo.HasSecret() && security.IsWeakSecret(repo.Secret) {
			warnings = append(warnings, fmt.Sprintf("repo '%s': secret looks weak, generate one with 'deployhook secret'", repo.Identifier))
		}
		if !repo.HasSecret() {
			warnings = append(warnings, fmt.Sprintf("repo '%s': no secret configured, unsigned deliveries will be accepted", repo.Identifier))
		}
		cfg.Repos = append(cfg.Repos, repo)
	}

	return cfg, warnings, nil
}

func newRepo(rc RepoConfig) (*Repo, error) {
	branch := rc.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	workingDir := rc.WorkingDirectory
	if workingDir == "" {
		workingDir = rc.RepoDirectory
	}

	command := rc.Command
	args := rc.Args
	if args == nil {
		args = []string{}
	}

	// "npm run deploy" with no args list is split shell-style
	if command != "" && len(args) == 0 && strings.ContainsAny(command, " \t") {
		parts, err := cmdutil.ParseCommandString(command)
		if err != nil {
			return nil, err
		}
		command, args = parts[0], parts[1:]
	}

	events := make([]event.Kind, 0, len(rc.Events))
	for _, name := range rc.Events {
		kind, err := event.ParseStrict(name)
		if err != nil {
			return nil, err
		}
		events = append(events, kind)
	}

	return &Repo{
		Identifier:       rc.Repo,
		Command:          command,
		Args:             args,
		Secret:           rc.Secret,
		Events:           events,
		RepoDirectory:    rc.RepoDirectory,
		WorkingDirectory: workingDir,
		Branch:           branch,
		GitTimeout:       time.Duration(rc.GitTimeout) * time.Second,
		CommandTimeout:   time.Duration(rc.CommandTimeout) * time.Second,
	}, nil
}

// ValidateRepoConfig validates a single repository entry
func ValidateRepoConfig(index int, rc RepoConfig) []string {
	var errors []string

	label := fmt.Sprintf("repos[%d]", index)
	if rc.Repo != "" {
		label = fmt.Sprintf("repos[%d] '%s'", index, rc.Repo)
	}

	if rc.Repo == "" {
		errors = append(errors, fmt.Sprintf("  - %s: missing required 'repo' field", label))
	} else if err := security.ValidateRepoIdentifier(rc.Repo); err != nil {
		errors = append(errors, fmt.Sprintf("  - %s: %v", label, err))
	}

	if rc.RepoDirectory == "" {
		errors = append(errors, fmt.Sprintf("  - %s: missing required 'repo_directory' field", label))
	}

	if rc.Branch != "" {
		if err := security.ValidateBranchName(rc.Branch); err != nil {
			errors = append(errors, fmt.Sprintf("  - %s: %v, got '%s'", label, err, rc.Branch))
		}
	}

	if rc.Command == "" && len(rc.Args) > 0 {
		errors = append(errors, fmt.Sprintf("  - %s: 'args' given without 'command'", label))
	}

	for i, name := range rc.Events {
		if _, err := event.ParseStrict(name); err != nil {
			errors = append(errors, fmt.Sprintf("  - %s: events[%d]: %v", label, i, err))
		}
	}

	if rc.GitTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - %s: git_timeout must not be negative, got %d", label, rc.GitTimeout))
	}
	if rc.CommandTimeout < 0 {
		errors = append(errors, fmt.Sprintf("  - %s: command_timeout must not be negative, got %d", label, rc.CommandTimeout))
	}

	return errors
}

func (c *Config) hasSecrets() bool {
	if c.GitHubToken != "" {
		return true
	}
	for _, r := range c.Repos {
		if r.HasSecret() {
			return true
		}
	}
	return false
}
