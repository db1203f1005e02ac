package server

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"deployhook/internal/history"
)

func TestShutdown_ClosesHistoryWhenIdle(t *testing.T) {
	srv, _, _ := setupTestServer(t, testRepo(t.TempDir()))

	hist, err := history.NewHistory(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	srv.History = hist

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if _, err := hist.GetLatestDelivery(context.Background(), "acme/app"); err == nil {
		t.Error("Expected history to be closed after an idle shutdown")
	}
}

func TestShutdown_KeepsHistoryOpenForRunningCommands(t *testing.T) {
	srv, _, logs := setupTestServer(t, testRepo(t.TempDir()))

	hist, err := history.NewHistory(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })
	srv.History = hist

	id, err := hist.RecordDelivery(context.Background(), &history.DeliveryRecord{
		Repo:      "acme/app",
		Event:     "push",
		Branch:    "main",
		Status:    history.StatusRunning,
		StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to record delivery: %v", err)
	}

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv.Dispatcher.Dispatch(context.Background(), "slow command", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// A command finishing after the grace period can still record its outcome
	exitCode := 0
	if err := hist.CompleteDelivery(context.Background(), id, history.StatusSucceeded, &exitCode, time.Second, ""); err != nil {
		t.Errorf("Expected history to stay open while commands run, got: %v", err)
	}
	if !strings.Contains(logs.String(), "leaving history open") {
		t.Errorf("Expected warning about running commands, got logs: %s", logs.String())
	}
}
