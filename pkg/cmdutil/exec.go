package cmdutil

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrStart is returned when a command could not be launched at all
// (executable missing, permission denied, bad working directory).
var ErrStart = errors.New("command did not start")

// OutputWaitDelay bounds how long output is still collected after the command
// exits or is killed. Background children that inherited stdout or stderr
// would otherwise hold the pipes open until they exit themselves.
const OutputWaitDelay = 500 * time.Millisecond

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command.
	// Each entry should be in the form "KEY=value". Nil inherits the
	// current process environment.
	Env []string
}

// Result contains the result of a command execution.
type Result struct {
	// Stdout is the captured standard output. Empty for streamed commands.
	Stdout []byte

	// Stderr is the captured standard error. Empty for streamed commands.
	Stderr []byte

	// ExitCode is the exit code of the command, -1 if it was killed by a signal.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// OK reports whether the command exited with status zero.
func (r *Result) OK() bool {
	return r != nil && r.ExitCode == 0
}

// Stream identifies an output stream of a command.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// LineHandler receives one line of output without its trailing newline.
// It is called from two goroutines, one per stream.
type LineHandler func(stream Stream, line string)

// Run executes a command with the given options and captures stdout and
// stderr in full. A non-zero exit is returned as an error alongside the result.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.WaitDelay = OutputWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Result{ExitCode: -1}, fmt.Errorf("%w: %w", ErrStart, err)
	}
	err := waitIgnoringOrphans(cmd)

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}

// StreamLines executes a command and hands every line of stdout and stderr
// to onLine as soon as it is written. The two streams are drained
// independently, so lines are ordered within a stream but not across them.
func StreamLines(ctx context.Context, opts ExecOptions, cmdParts []string, onLine LineHandler) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.WaitDelay = OutputWaitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Result{ExitCode: -1}, fmt.Errorf("%w: %w", ErrStart, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLines(stdoutR, Stdout, onLine)
	}()
	go func() {
		defer wg.Done()
		readLines(stderrR, Stderr, onLine)
	}()

	// Wait returns once the command has exited and its output is copied, or
	// OutputWaitDelay later if a background child still holds the pipes.
	err := waitIgnoringOrphans(cmd)
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	result := &Result{Duration: time.Since(start)}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}

// waitIgnoringOrphans waits for cmd. A command that exited cleanly but left a
// background child holding its output open still counts as a success.
func waitIgnoringOrphans(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

func readLines(r io.Reader, stream Stream, onLine LineHandler) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			onLine(stream, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// ParseCommandString parses a shell-quoted command string into parts.
//
// Example:
//
//	"npm run deploy -- --tag \"v1 rc\"" -> ["npm", "run", "deploy", "--", "--tag", "v1 rc"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["git", "commit", "-m", "my message"] -> "git commit -m 'my message'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// SanitizeOutput removes sensitive values from command output before it is logged.
func SanitizeOutput(output string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			output = strings.ReplaceAll(output, secret, "***REDACTED***")
		}
	}
	return output
}

// SplitLines splits captured output into lines, dropping the trailing empty line.
func SplitLines(output []byte) []string {
	text := strings.TrimRight(string(output), "\r\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}
