package deployment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"deployhook/internal/config"
	"deployhook/internal/event"
	"deployhook/pkg/cmdutil"
)

// Runner executes a command and captures its output.
type Runner interface {
	Run(ctx context.Context, opts cmdutil.ExecOptions, cmdParts []string) (*cmdutil.Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, opts cmdutil.ExecOptions, cmdParts []string) (*cmdutil.Result, error)

func (f RunnerFunc) Run(ctx context.Context, opts cmdutil.ExecOptions, cmdParts []string) (*cmdutil.Result, error) {
	return f(ctx, opts, cmdParts)
}

// StepResult is the captured outcome of one git invocation.
type StepResult struct {
	Name     string
	Command  []string
	Stdout   []string
	Stderr   []string
	ExitCode int
	Duration time.Duration
}

// SyncResult holds the steps of a synchronization in execution order.
type SyncResult struct {
	Steps    []StepResult
	Duration time.Duration
}

// GitError reports the git step that failed.
type GitError struct {
	Step     string
	ExitCode int
	Err      error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed (exit code %d): %v", e.Step, e.ExitCode, e.Err)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// Synchronizer resets a working copy to its remote branch.
type Synchronizer struct {
	GitBinary string
	Runner    Runner
	Logger    *slog.Logger
}

// NewSynchronizer creates a synchronizer that shells out to gitBinary.
func NewSynchronizer(gitBinary string, logger *slog.Logger) *Synchronizer {
	if gitBinary == "" {
		gitBinary = config.DefaultGitBinary
	}
	return &Synchronizer{
		GitBinary: gitBinary,
		Runner:    RunnerFunc(cmdutil.Run),
		Logger:    logger,
	}
}

// Sync runs `fetch --all` followed by `reset --hard origin/<branch>` in the
// repo's working copy. It stops at the first failing step; nothing is rolled
// back, so a failed fetch can leave the working copy partially fetched.
func (s *Synchronizer) Sync(ctx context.Context, repo *config.Repo, kind event.Kind) (*SyncResult, error) {
	prefix := Prefix(repo.Identifier, kind)
	start := time.Now()
	result := &SyncResult{}

	steps := []struct {
		name string
		args []string
	}{
		{"fetch", []string{"fetch", "--all"}},
		{"reset", []string{"reset", "--hard", "origin/" + repo.Branch}},
	}

	for _, step := range steps {
		stepResult, err := s.runStep(ctx, repo, prefix, step.name, step.args)
		result.Steps = append(result.Steps, stepResult)
		if err != nil {
			result.Duration = time.Since(start)
			return result, &GitError{Step: step.name, ExitCode: stepResult.ExitCode, Err: err}
		}
	}

	result.Duration = time.Since(start)
	s.Logger.Info(prefix+" working copy synchronized",
		"repo", repo.Identifier,
		"branch", repo.Branch,
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

func (s *Synchronizer) runStep(ctx context.Context, repo *config.Repo, prefix, name string, args []string) (StepResult, error) {
	cmdParts := append([]string{s.GitBinary}, args...)
	step := StepResult{Name: name, Command: cmdParts}

	s.Logger.Info(prefix+" running "+cmdutil.FormatCommand(cmdParts), "dir", repo.RepoDirectory)

	res, err := s.Runner.Run(ctx, cmdutil.ExecOptions{
		Dir:     repo.RepoDirectory,
		Timeout: repo.GitTimeout,
		// Never block on a credential prompt
		Env: append(os.Environ(), "GIT_TERMINAL_PROMPT=0"),
	}, cmdParts)

	if res != nil {
		step.ExitCode = res.ExitCode
		step.Duration = res.Duration
		step.Stdout = redactLines(cmdutil.SplitLines(res.Stdout), repo.Secret)
		step.Stderr = redactLines(cmdutil.SplitLines(res.Stderr), repo.Secret)
	}

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	for _, line := range step.Stdout {
		s.Logger.Log(ctx, level, prefix+" "+line, "step", name, "stream", string(cmdutil.Stdout))
	}
	for _, line := range step.Stderr {
		s.Logger.Log(ctx, level, prefix+" "+line, "step", name, "stream", string(cmdutil.Stderr))
	}

	if err != nil {
		s.Logger.Error(prefix+" git "+name+" failed", "error", err, "exit_code", step.ExitCode)
		return step, err
	}

	return step, nil
}

// Prefix formats the "[repo][event]" tag used on every output line.
func Prefix(identifier string, kind event.Kind) string {
	return fmt.Sprintf("[%s][%s]", identifier, kind)
}

func redactLines(lines []string, secret string) []string {
	if secret == "" {
		return lines
	}
	for i, line := range lines {
		lines[i] = cmdutil.SanitizeOutput(line, []string{secret})
	}
	return lines
}
