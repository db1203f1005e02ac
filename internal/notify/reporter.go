package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// StatusContext labels the commit statuses created by the reporter.
const StatusContext = "deployhook"

// GitHub rejects longer descriptions.
const maxDescriptionLength = 140

// State is a GitHub commit status state.
type State string

const (
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFailure State = "failure"
	StateError   State = "error"
)

// Reporter publishes deployment progress as GitHub commit statuses.
type Reporter struct {
	client *github.Client
	Logger *slog.Logger
}

// NewReporter creates a reporter authenticated with token. apiURL overrides
// the API root for GitHub Enterprise (e.g. https://ghe.example.com/api/v3/).
func NewReporter(token, apiURL string, logger *slog.Logger) (*Reporter, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(tc)

	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		base, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url %q: %w", apiURL, err)
		}
		client.BaseURL = base
	}

	return &Reporter{client: client, Logger: logger}, nil
}

// Report sets the commit status of sha in the repository fullName (owner/name).
func (r *Reporter) Report(ctx context.Context, fullName, sha string, state State, description string) error {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return fmt.Errorf("invalid repository name %q", fullName)
	}
	if sha == "" {
		return fmt.Errorf("commit sha is required")
	}

	if len(description) > maxDescriptionLength {
		description = description[:maxDescriptionLength-3] + "..."
	}

	status := &github.RepoStatus{
		State:       github.String(string(state)),
		Description: github.String(description),
		Context:     github.String(StatusContext),
	}

	if _, _, err := r.client.Repositories.CreateStatus(ctx, owner, name, sha, status); err != nil {
		return fmt.Errorf("creating commit status for %s@%s: %w", fullName, shortSHA(sha), err)
	}

	r.Logger.Debug("commit status reported",
		"repo", fullName,
		"sha", shortSHA(sha),
		"state", string(state))

	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
