package config

import (
	"testing"

	"deployhook/internal/event"

	"github.com/google/go-cmp/cmp"
)

func newTestRegistry() *Registry {
	return NewRegistry([]*Repo{
		{Identifier: "acme/site", RepoDirectory: "/srv/site", Events: []event.Kind{event.Push}},
		{Identifier: "acme/api", RepoDirectory: "/srv/api"},
		{Identifier: "acme/docs", RepoDirectory: "/srv/docs", Events: []event.Kind{event.Release, event.Push}},
	})
}

func TestRegistry_Match(t *testing.T) {
	registry := newTestRegistry()

	testCases := []struct {
		name     string
		fullName string
		kind     event.Kind
		want     MatchResult
	}{
		{"listed event", "acme/site", event.Push, Matched},
		{"filtered event", "acme/site", event.Issues, EventFiltered},
		{"empty list accepts all", "acme/api", event.WorkflowRun, Matched},
		{"empty list accepts unknown", "acme/api", event.Unknown, Matched},
		{"second listed event", "acme/docs", event.Release, Matched},
		{"unknown repo", "acme/other", event.Push, UnknownRepo},
		{"case sensitive", "Acme/Site", event.Push, UnknownRepo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, result := registry.Match(tc.fullName, tc.kind)
			if result != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, result)
			}
			if (repo != nil) != (tc.want == Matched) {
				t.Errorf("Expected repo only on match, got %v", repo)
			}
			if repo != nil && repo.Identifier != tc.fullName {
				t.Errorf("Expected %s, got %s", tc.fullName, repo.Identifier)
			}
		})
	}
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	registry := NewRegistry([]*Repo{
		{Identifier: "acme/site", RepoDirectory: "/first"},
		{Identifier: "acme/site", RepoDirectory: "/second"},
	})

	repo, ok := registry.Lookup("acme/site")
	if !ok {
		t.Fatal("Expected repo to be found")
	}
	if repo.RepoDirectory != "/first" {
		t.Errorf("Expected first entry to win, got %s", repo.RepoDirectory)
	}
}

func TestRegistry_LookupIgnoresEvents(t *testing.T) {
	registry := newTestRegistry()

	if _, ok := registry.Lookup("acme/site"); !ok {
		t.Error("Expected Lookup to find repo regardless of events")
	}
	if _, ok := registry.Lookup("acme/missing"); ok {
		t.Error("Expected Lookup to miss unknown repo")
	}
}

func TestRegistry_ListAndCount(t *testing.T) {
	registry := newTestRegistry()

	want := []string{"acme/site", "acme/api", "acme/docs"}
	if diff := cmp.Diff(want, registry.List()); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
	if registry.Count() != 3 {
		t.Errorf("Expected 3 repos, got %d", registry.Count())
	}

	empty := NewRegistry(nil)
	if empty.Count() != 0 || len(empty.List()) != 0 {
		t.Error("Expected empty registry")
	}
	if _, result := empty.Match("acme/site", event.Push); result != UnknownRepo {
		t.Errorf("Expected unknown_repo, got %s", result)
	}
}

func TestMatchResult_String(t *testing.T) {
	testCases := map[MatchResult]string{
		Matched:         "matched",
		UnknownRepo:     "unknown_repo",
		EventFiltered:   "event_filtered",
		MatchResult(99): "invalid",
	}
	for result, want := range testCases {
		if got := result.String(); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}
