package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"deployhook/internal/config"
	"deployhook/internal/event"
	"deployhook/pkg/cmdutil"
)

// safeBuffer is a thread-safe buffer for concurrent logging
type safeBuffer struct {
	b bytes.Buffer
	m sync.Mutex
}

func (sb *safeBuffer) Write(p []byte) (int, error) {
	sb.m.Lock()
	defer sb.m.Unlock()
	return sb.b.Write(p)
}

func (sb *safeBuffer) String() string {
	sb.m.Lock()
	defer sb.m.Unlock()
	return sb.b.String()
}

// fakeRunner stands in for git and counts invocations.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, _ cmdutil.ExecOptions, cmdParts []string) (*cmdutil.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdParts)
	if f.err != nil {
		return &cmdutil.Result{ExitCode: 128, Stderr: []byte("fatal: not a git repository\n")}, f.err
	}
	return &cmdutil.Result{}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testRepo(dir string) *config.Repo {
	return &config.Repo{
		Identifier:       "acme/app",
		Secret:           testSecret,
		Events:           []event.Kind{event.Push},
		RepoDirectory:    dir,
		WorkingDirectory: dir,
		Branch:           "main",
	}
}

// setupTestServer builds a server over repos whose git invocations go to a
// fakeRunner. Logs are written as JSON into the returned buffer.
func setupTestServer(t *testing.T, repos ...*config.Repo) (*Server, *fakeRunner, *safeBuffer) {
	t.Helper()

	logs := &safeBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	srv := NewServer(&config.Config{GitBinary: "git", Repos: repos}, logger)
	runner := &fakeRunner{}
	srv.Synchronizer.Runner = runner

	t.Cleanup(srv.WaitForCommands)

	return srv, runner, logs
}

func newHookRequest(kind string, payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if kind != "" {
		req.Header.Set("X-GitHub-Event", kind)
	}
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

var errGitFailed = errors.New("exit status 128")

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Test User", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test User", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out.String())
	}
	return strings.TrimSpace(out.String())
}

// setupTestGitRepo creates a bare origin with a commit on main, a working
// copy cloned from it, and then pushes a second commit to origin that the
// working copy has not seen yet. It returns the working copy and the new head.
func setupTestGitRepo(t *testing.T) (work, head string) {
	t.Helper()
	requireGit(t)

	root := t.TempDir()
	origin := filepath.Join(root, "origin.git")
	seed := filepath.Join(root, "seed")
	work = filepath.Join(root, "work")

	runGit(t, root, "init", "--bare", origin)

	if err := os.MkdirAll(seed, 0755); err != nil {
		t.Fatalf("Failed to create seed directory: %v", err)
	}
	runGit(t, seed, "init")
	writeFile(t, filepath.Join(seed, "README.md"), "v1\n")
	runGit(t, seed, "add", "README.md")
	runGit(t, seed, "commit", "-m", "Initial commit")
	runGit(t, seed, "branch", "-M", "main")
	runGit(t, seed, "remote", "add", "origin", origin)
	runGit(t, seed, "push", "origin", "main")
	runGit(t, origin, "symbolic-ref", "HEAD", "refs/heads/main")

	runGit(t, root, "clone", origin, work)

	writeFile(t, filepath.Join(seed, "README.md"), "v2\n")
	runGit(t, seed, "commit", "-am", "Second commit")
	runGit(t, seed, "push", "origin", "main")

	return work, runGit(t, seed, "rev-parse", "HEAD")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
