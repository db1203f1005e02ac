package config

import "deployhook/internal/event"

// MatchResult explains the outcome of Registry.Match.
type MatchResult int

const (
	Matched MatchResult = iota
	UnknownRepo
	EventFiltered
)

func (m MatchResult) String() string {
	switch m {
	case Matched:
		return "matched"
	case UnknownRepo:
		return "unknown_repo"
	case EventFiltered:
		return "event_filtered"
	default:
		return "invalid"
	}
}

// Registry answers which configured repo a delivery belongs to.
// It wraps the immutable Config and needs no locking.
type Registry struct {
	repos []*Repo
}

// NewRegistry creates a registry over repos, preserving their order.
func NewRegistry(repos []*Repo) *Registry {
	return &Registry{repos: repos}
}

// Lookup returns the first repo whose identifier equals fullName,
// regardless of the event kinds it accepts.
func (r *Registry) Lookup(fullName string) (*Repo, bool) {
	for _, repo := range r.repos {
		if repo.Identifier == fullName {
			return repo, true
		}
	}
	return nil, false
}

// Match selects the first repo with the given identifier and checks that it
// accepts kind. The repo is only returned when the result is Matched.
func (r *Registry) Match(fullName string, kind event.Kind) (*Repo, MatchResult) {
	repo, ok := r.Lookup(fullName)
	if !ok {
		return nil, UnknownRepo
	}
	if !repo.Accepts(kind) {
		return nil, EventFiltered
	}
	return repo, Matched
}

// List returns all repo identifiers in configuration order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.repos))
	for _, repo := range r.repos {
		names = append(names, repo.Identifier)
	}
	return names
}

// Count returns the number of repos
func (r *Registry) Count() int {
	return len(r.repos)
}
