package config

import (
	"time"

	"deployhook/internal/event"
)

// Repo is a validated repository entry. Repos are never mutated after load.
type Repo struct {
	Identifier       string
	Command          string
	Args             []string
	Secret           string `masq:"secret"`
	Events           []event.Kind
	RepoDirectory    string
	WorkingDirectory string
	Branch           string
	GitTimeout       time.Duration // zero means no timeout
	CommandTimeout   time.Duration // zero means no timeout
}

// HasCommand reports whether a deployment command is configured.
func (r *Repo) HasCommand() bool {
	return r.Command != ""
}

// HasSecret reports whether deliveries can be authenticated.
func (r *Repo) HasSecret() bool {
	return r.Secret != ""
}

// Argv returns the command followed by its arguments.
func (r *Repo) Argv() []string {
	argv := make([]string, 0, len(r.Args)+1)
	argv = append(argv, r.Command)
	return append(argv, r.Args...)
}

// Accepts reports whether the repo reacts to the given event kind.
// An empty event list accepts everything.
func (r *Repo) Accepts(kind event.Kind) bool {
	if len(r.Events) == 0 {
		return true
	}
	for _, k := range r.Events {
		if k == kind {
			return true
		}
	}
	return false
}

// Config is the process-wide configuration, built once at startup.
type Config struct {
	Host         string
	Port         int
	GitBinary    string
	GitHubToken  string `masq:"secret"`
	GitHubAPIURL string
	RateLimit    int // webhook requests per minute per client, zero disables
	Repos        []*Repo
}

// RepoConfig is the on-disk shape of a repository entry.
type RepoConfig struct {
	Repo             string   `toml:"repo" yaml:"repo"`
	Command          string   `toml:"command" yaml:"command"`
	Args             []string `toml:"args" yaml:"args"`
	Secret           string   `toml:"secret" yaml:"secret"`
	Events           []string `toml:"events" yaml:"events"`
	RepoDirectory    string   `toml:"repo_directory" yaml:"repo_directory"`
	WorkingDirectory string   `toml:"working_directory" yaml:"working_directory"`
	Branch           string   `toml:"branch" yaml:"branch"`
	GitTimeout       int      `toml:"git_timeout" yaml:"git_timeout"`
	CommandTimeout   int      `toml:"command_timeout" yaml:"command_timeout"`
}

// FileConfig is the on-disk root configuration.
type FileConfig struct {
	Host         string       `toml:"host" yaml:"host"`
	Port         int          `toml:"port" yaml:"port"`
	Git          string       `toml:"git" yaml:"git"`
	GitHubToken  string       `toml:"github_token" yaml:"github_token"`
	GitHubAPIURL string       `toml:"github_api_url" yaml:"github_api_url"`
	RateLimit    int          `toml:"rate_limit" yaml:"rate_limit"`
	Repos        []RepoConfig `toml:"repos" yaml:"repos"`
}
