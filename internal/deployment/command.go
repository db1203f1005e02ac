package deployment

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"deployhook/internal/config"
	"deployhook/internal/event"
	"deployhook/pkg/cmdutil"
)

// StreamFunc launches a command and hands its output lines to onLine.
type StreamFunc func(ctx context.Context, opts cmdutil.ExecOptions, cmdParts []string, onLine cmdutil.LineHandler) (*cmdutil.Result, error)

// Executor runs a repo's deployment command and streams its output into the log.
type Executor struct {
	Stream StreamFunc
	Logger *slog.Logger
}

// NewExecutor creates a new executor
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{Stream: cmdutil.StreamLines, Logger: logger}
}

// Run launches repo.Command with repo.Args in repo.WorkingDirectory and logs
// every stdout and stderr line as it is produced. It blocks until the process
// exits; callers dispatch it off the request path.
//
// The returned result is nil when the process could not be started.
func (e *Executor) Run(ctx context.Context, repo *config.Repo, kind event.Kind, deliveryID string) (*cmdutil.Result, error) {
	prefix := Prefix(repo.Identifier, kind)
	argv := repo.Argv()
	secrets := []string{repo.Secret}
	display := cmdutil.SanitizeOutput(cmdutil.FormatCommand(argv), secrets)

	e.Logger.Info(prefix+" starting command "+display,
		"dir", repo.WorkingDirectory,
		"delivery", deliveryID)

	env := append(os.Environ(),
		"DEPLOYHOOK_REPO="+repo.Identifier,
		"DEPLOYHOOK_EVENT="+kind.String(),
		"DEPLOYHOOK_BRANCH="+repo.Branch,
		"DEPLOYHOOK_REPO_DIRECTORY="+repo.RepoDirectory,
		"DEPLOYHOOK_DELIVERY="+deliveryID,
	)

	result, err := e.Stream(ctx, cmdutil.ExecOptions{
		Dir:     repo.WorkingDirectory,
		Timeout: repo.CommandTimeout,
		Env:     env,
	}, argv, func(stream cmdutil.Stream, line string) {
		e.Logger.Info(prefix+" "+cmdutil.SanitizeOutput(line, secrets), "stream", string(stream))
	})

	if errors.Is(err, cmdutil.ErrStart) {
		e.Logger.Error(prefix+" command failed to start", "command", display, "error", err)
		return nil, err
	}

	if err != nil {
		if result == nil {
			e.Logger.Error(prefix+" command failed", "command", display, "error", err)
			return nil, err
		}
		e.Logger.Error(prefix+" command exited with non-zero status",
			"exit_code", result.ExitCode,
			"duration_ms", result.Duration.Milliseconds(),
			"error", err)
		return result, err
	}

	e.Logger.Info(prefix+" command finished",
		"exit_code", result.ExitCode,
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}
