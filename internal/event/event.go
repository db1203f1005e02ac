// Package event defines the GitHub webhook event kinds deployhook understands.
package event

import (
	"fmt"
	"strings"
)

// Kind is a GitHub webhook event kind as sent in the X-GitHub-Event header.
type Kind string

const (
	Push                     Kind = "push"
	Ping                     Kind = "ping"
	PullRequest              Kind = "pull_request"
	PullRequestReview        Kind = "pull_request_review"
	PullRequestReviewComment Kind = "pull_request_review_comment"
	Issues                   Kind = "issues"
	IssueComment             Kind = "issue_comment"
	Create                   Kind = "create"
	Delete                   Kind = "delete"
	Release                  Kind = "release"
	WorkflowRun              Kind = "workflow_run"
	WorkflowJob              Kind = "workflow_job"
	WorkflowDispatch         Kind = "workflow_dispatch"
	CheckRun                 Kind = "check_run"
	CheckSuite               Kind = "check_suite"
	Status                   Kind = "status"
	Deployment               Kind = "deployment"
	DeploymentStatus         Kind = "deployment_status"
	Fork                     Kind = "fork"
	Star                     Kind = "star"
	Watch                    Kind = "watch"
	Member                   Kind = "member"
	Public                   Kind = "public"
	Repository               Kind = "repository"
	Label                    Kind = "label"
	Milestone                Kind = "milestone"
	CommitComment            Kind = "commit_comment"
	Gollum                   Kind = "gollum"
	PageBuild                Kind = "page_build"
	Package                  Kind = "package"
	RegistryPackage          Kind = "registry_package"
	Discussion               Kind = "discussion"
	DiscussionComment        Kind = "discussion_comment"
	MergeGroup               Kind = "merge_group"
	RepositoryDispatch       Kind = "repository_dispatch"
	Meta                     Kind = "meta"

	// Unknown is any event kind GitHub sends that is not listed above.
	Unknown Kind = "unknown"
)

var known = map[Kind]bool{
	Push: true, Ping: true, PullRequest: true, PullRequestReview: true,
	PullRequestReviewComment: true, Issues: true, IssueComment: true,
	Create: true, Delete: true, Release: true, WorkflowRun: true,
	WorkflowJob: true, WorkflowDispatch: true, CheckRun: true, CheckSuite: true,
	Status: true, Deployment: true, DeploymentStatus: true, Fork: true,
	Star: true, Watch: true, Member: true, Public: true, Repository: true,
	Label: true, Milestone: true, CommitComment: true, Gollum: true,
	PageBuild: true, Package: true, RegistryPackage: true, Discussion: true,
	DiscussionComment: true, MergeGroup: true, RepositoryDispatch: true,
	Meta: true,
}

// Parse converts a header value into a Kind. Unrecognised values map to
// Unknown so new GitHub events keep flowing through the pipeline.
func Parse(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if known[k] {
		return k
	}
	return Unknown
}

// ParseStrict is Parse for configuration values: unrecognised names are an error.
func ParseStrict(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !known[k] {
		return Unknown, fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// IsKnown reports whether k is one of the recognised event kinds.
func (k Kind) IsKnown() bool {
	return known[k]
}

func (k Kind) String() string {
	return string(k)
}
