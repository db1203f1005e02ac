package deployment

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// logRecord is a log entry observed by recordingHandler.
type logRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// recordingHandler is a slog.Handler that keeps every record with the time it
// was handled, so tests can check when output reached the log.
type recordingHandler struct {
	mu      *sync.Mutex
	records *[]logRecord
	attrs   []slog.Attr
}

func newRecordingLogger() (*slog.Logger, *recordingHandler) {
	h := &recordingHandler{mu: &sync.Mutex{}, records: &[]logRecord{}}
	return slog.New(h), h
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := logRecord{Time: time.Now(), Level: r.Level, Message: r.Message, Attrs: map[string]string{}}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.String()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, rec)
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{mu: h.mu, records: h.records, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func (h *recordingHandler) snapshot() []logRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]logRecord(nil), *h.records...)
}

// find returns the first record whose message contains substr.
func (h *recordingHandler) find(substr string) (logRecord, bool) {
	for _, r := range h.snapshot() {
		if strings.Contains(r.Message, substr) {
			return r, true
		}
	}
	return logRecord{}, false
}

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

// setupGitRemote creates a bare origin with one commit on main and a working
// copy cloned from it. It returns the origin and working copy paths.
func setupGitRemote(t *testing.T) (origin, work string) {
	t.Helper()
	requireGit(t)

	root := t.TempDir()
	origin = filepath.Join(root, "origin.git")
	seed := filepath.Join(root, "seed")
	work = filepath.Join(root, "work")

	runGit(t, root, "init", "--bare", origin)

	if err := os.MkdirAll(seed, 0755); err != nil {
		t.Fatalf("Failed to create seed directory: %v", err)
	}
	runGit(t, seed, "init")
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("v1\n"), 0644); err != nil {
		t.Fatalf("Failed to write README: %v", err)
	}
	runGit(t, seed, "add", "README.md")
	runGit(t, seed, "commit", "-m", "Initial commit")
	runGit(t, seed, "branch", "-M", "main")
	runGit(t, seed, "remote", "add", "origin", origin)
	runGit(t, seed, "push", "origin", "main")
	runGit(t, origin, "symbolic-ref", "HEAD", "refs/heads/main")

	runGit(t, root, "clone", origin, work)

	return origin, work
}

// pushCommit adds a commit to origin's main branch through a fresh clone and
// returns the new head.
func pushCommit(t *testing.T, origin, content string) string {
	t.Helper()

	upstream := filepath.Join(t.TempDir(), "upstream")
	runGit(t, filepath.Dir(upstream), "clone", origin, upstream)
	if err := os.WriteFile(filepath.Join(upstream, "README.md"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write README: %v", err)
	}
	runGit(t, upstream, "commit", "-am", "Update README")
	runGit(t, upstream, "push", "origin", "main")

	return runGit(t, origin, "rev-parse", "main")
}
