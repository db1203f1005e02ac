package security

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	branchPattern = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	ownerPattern  = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	namePattern   = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateBranchName ensures branch name is safe for git operations.
// Prevents option injection through branch names passed to git reset.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if strings.Contains(branch, "..") {
		return fmt.Errorf("branch name cannot contain '..'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateRepoIdentifier ensures a repository identifier has the
// "owner/name" shape GitHub sends in repository.full_name.
func ValidateRepoIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("repository identifier cannot be empty")
	}

	owner, name, ok := strings.Cut(identifier, "/")
	if !ok || strings.Contains(name, "/") {
		return fmt.Errorf("repository identifier must look like 'owner/name', got '%s'", identifier)
	}
	if !ownerPattern.MatchString(owner) {
		return fmt.Errorf("repository owner '%s' contains invalid characters", owner)
	}
	if name == "." || name == ".." || !namePattern.MatchString(name) {
		return fmt.Errorf("repository name '%s' contains invalid characters", name)
	}
	return nil
}
