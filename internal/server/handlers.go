package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"deployhook/internal/config"
	"deployhook/internal/event"
	"deployhook/internal/history"
	"deployhook/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v57/github"
	"github.com/google/uuid"
)

const (
	// GitHub caps webhook payloads at 25 MB
	MaxPayloadBytes = 25 << 20

	RecentDeliveriesLimit = 10 // Number of recent deliveries returned by the status endpoint
)

// RootText is served on GET /.
const RootText = "deployhook webhook listener\n"

// webhookPayload holds the fields read from any event body.
type webhookPayload struct {
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Ref        string `json:"ref"`
	After      string `json:"after"`
	HeadCommit *struct {
		ID string `json:"id"`
	} `json:"head_commit"`
}

func (p *webhookPayload) fullName() string {
	if p.Repository == nil {
		return ""
	}
	return p.Repository.FullName
}

// commitSHA returns the commit that ends up deployed for branch, or "" when
// the payload does not name one. Pushes to other branches and branch
// deletions (an all-zero after) have no deployed commit.
func (p *webhookPayload) commitSHA(branch string) string {
	if p.Ref != "" && p.Ref != "refs/heads/"+branch {
		return ""
	}
	if p.After != "" && strings.Trim(p.After, "0") != "" {
		return p.After
	}
	if p.HeadCommit != nil {
		return p.HeadCommit.ID
	}
	return ""
}

// HandleHook handles GitHub webhook deliveries.
func (s *Server) HandleHook(w http.ResponseWriter, r *http.Request) {
	kindHeader := github.WebHookType(r)
	if kindHeader == "" {
		s.Logger.Warn("Webhook without event header, ignoring")
		s.respondNotModified(w)
		return
	}
	kind := event.Parse(kindHeader)
	deliveryID := github.DeliveryID(r)
	if deliveryID == "" {
		// Hand-crafted deliveries (curl, tests) still get a traceable id
		deliveryID = uuid.NewString()
	}

	if kind == event.Ping {
		s.Logger.Info("Ping received", "delivery", deliveryID)
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return
		}
		s.Logger.Warn("Failed to read request body", "error", err, "delivery", deliveryID)
		s.respondNotModified(w)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.Logger.Warn("Malformed JSON payload", "error", err, "event", kind.String(), "delivery", deliveryID)
		s.respondNotModified(w)
		return
	}
	fullName := payload.fullName()
	if fullName == "" {
		s.Logger.Warn("Payload has no repository.full_name", "event", kind.String(), "delivery", deliveryID)
		s.respondNotModified(w)
		return
	}

	repo, result := s.Registry.Match(fullName, kind)
	if result != config.Matched {
		s.Logger.Warn("No repository matched delivery",
			"repo", fullName,
			"event", kind.String(),
			"reason", result.String(),
			"delivery", deliveryID)
		s.respondNotModified(w)
		return
	}

	logger := s.Logger.With("repo", repo.Identifier, "event", kind.String(), "delivery", deliveryID)

	if signature := r.Header.Get(SignatureHeader); signature != "" {
		if !repo.HasSecret() {
			logger.Error("Signed delivery for repository without secret")
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "No secret configured"})
			return
		}
		if !VerifySignature(repo.Secret, signature, body) {
			logger.Error("Invalid webhook signature")
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
			return
		}
	}

	if !repo.Accepts(kind) {
		logger.Warn("Event not accepted by repository")
		s.respondNotModified(w)
		return
	}

	// Keep going if the sender hangs up mid-fetch
	ctx := context.WithoutCancel(r.Context())
	sha := payload.commitSHA(repo.Branch)
	started := time.Now()

	if err := s.syncLocked(ctx, repo, kind); err != nil {
		logger.Error("Synchronization failed", "error", err)
		s.recordDelivery(ctx, logger, repo, kind, deliveryID, sha, started, history.StatusSyncFailed, err.Error())
		s.reportStatus(ctx, logger, repo, sha, notify.StateError, "git synchronization failed")
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to synchronize repository"})
		return
	}

	if !repo.HasCommand() {
		s.recordDelivery(ctx, logger, repo, kind, deliveryID, sha, started, history.StatusSynced, "")
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "deployed", "repo": repo.Identifier})
		return
	}

	id := s.recordDelivery(ctx, logger, repo, kind, deliveryID, sha, started, history.StatusRunning, "")
	s.reportStatus(ctx, logger, repo, sha, notify.StatePending, "deployment running")

	s.Dispatcher.Dispatch(ctx, "command "+repo.Identifier, func(ctx context.Context) error {
		return s.runCommand(ctx, logger, repo, kind, deliveryID, sha, id)
	})

	s.respondJSON(w, http.StatusOK, map[string]string{"message": "deployed", "repo": repo.Identifier})
}

// syncLocked synchronizes repo's working copy while holding its lock.
func (s *Server) syncLocked(ctx context.Context, repo *config.Repo, kind event.Kind) error {
	unlock := s.LockManager.Lock(repo.RepoDirectory)
	defer unlock()

	_, err := s.Synchronizer.Sync(ctx, repo, kind)
	return err
}

// runCommand executes the repo's command and records its outcome.
func (s *Server) runCommand(ctx context.Context, logger *slog.Logger, repo *config.Repo, kind event.Kind, deliveryID, sha string, id int64) error {
	started := time.Now()
	result, err := s.Executor.Run(ctx, repo, kind, deliveryID)

	status := history.StatusSucceeded
	state := notify.StateSuccess
	description := "deployment succeeded"
	var errMsg string
	if err != nil {
		status = history.StatusFailed
		state = notify.StateFailure
		description = "deployment command failed"
		errMsg = err.Error()
	}

	var exitCode *int
	if result != nil {
		exitCode = &result.ExitCode
	}

	s.reportStatus(ctx, logger, repo, sha, state, description)

	if s.History == nil || id == 0 {
		return nil
	}
	return s.History.CompleteDelivery(ctx, id, status, exitCode, time.Since(started), errMsg)
}

func (s *Server) recordDelivery(ctx context.Context, logger *slog.Logger, repo *config.Repo, kind event.Kind, deliveryID, sha string, started time.Time, status history.Status, errMsg string) int64 {
	if s.History == nil {
		return 0
	}

	record := &history.DeliveryRecord{
		Repo:       repo.Identifier,
		Event:      kind.String(),
		DeliveryID: deliveryID,
		Branch:     repo.Branch,
		CommitSHA:  stringPtrOrNil(sha),
		Status:     status,
		StartedAt:  started,
	}
	if status.Terminal() {
		duration := time.Since(started).Seconds()
		record.DurationSeconds = &duration
		record.ErrorMessage = stringPtrOrNil(errMsg)
	}

	id, err := s.History.RecordDelivery(ctx, record)
	if err != nil {
		logger.Error("Failed to record delivery history", "error", err)
		return 0
	}
	return id
}

func (s *Server) reportStatus(ctx context.Context, logger *slog.Logger, repo *config.Repo, sha string, state notify.State, description string) {
	if s.Reporter == nil || sha == "" {
		return
	}
	if err := s.Reporter.Report(ctx, repo.Identifier, sha, state, description); err != nil {
		logger.Warn("Failed to report commit status", "state", string(state), "error", err)
	}
}

// HandleRoot serves a static informational text.
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, RootText)
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":           "ok",
		"repos":            s.Registry.List(),
		"repo_count":       s.Registry.Count(),
		"running_commands": s.Dispatcher.InFlight(),
	}

	if s.History != nil {
		latest, err := s.History.GetAllReposStatus(r.Context())
		if err != nil {
			s.Logger.Error("Failed to get delivery status", "error", err)
		} else {
			statuses := make(map[string]history.Status, len(latest))
			for name, record := range latest {
				statuses[name] = record.Status
			}
			response["last_status"] = statuses
		}
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus returns the delivery history of one repository.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	if _, ok := s.Registry.Lookup(fullName); !ok {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown repository"})
		return
	}

	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Delivery history is disabled"})
		return
	}

	status, err := s.History.GetRepoStatus(r.Context(), fullName, RecentDeliveriesLimit)
	if err != nil {
		s.Logger.Error("Failed to get delivery history", "error", err, "repo", fullName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch delivery status"})
		return
	}

	s.respondJSON(w, http.StatusOK, status)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// respondNotModified sends the soft rejection used for deliveries that are
// valid HTTP but not actionable. 304 responses never carry a body.
func (s *Server) respondNotModified(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotModified)
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
