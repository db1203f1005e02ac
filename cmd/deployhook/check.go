package main

import (
	"fmt"
	"os/exec"
	"strings"

	"deployhook/internal/config"
	"deployhook/pkg/cmdutil"
	"deployhook/pkg/fileutil"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration without starting the server.

Prints every configured repository and any warnings, and checks that the git
binary and working copies are reachable from this machine.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	addConfigFlag(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path, err := resolveConfigPath(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg, warnings, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	warnings = append(warnings, environmentWarnings(cfg)...)

	fmt.Fprintf(out, "Configuration: %s\n", path)
	fmt.Fprintf(out, "Listen:        %s:%d\n", cfg.Host, cfg.Port)
	fmt.Fprintf(out, "Git:           %s\n", cfg.GitBinary)
	fmt.Fprintf(out, "Repositories:  %d\n", len(cfg.Repos))

	for _, repo := range cfg.Repos {
		fmt.Fprintf(out, "\n  %s\n", repo.Identifier)
		fmt.Fprintf(out, "    branch:            %s\n", repo.Branch)
		fmt.Fprintf(out, "    repo_directory:    %s\n", repo.RepoDirectory)
		fmt.Fprintf(out, "    working_directory: %s\n", repo.WorkingDirectory)
		fmt.Fprintf(out, "    events:            %s\n", describeEvents(repo))
		if repo.HasCommand() {
			fmt.Fprintf(out, "    command:           %s\n", cmdutil.FormatCommand(repo.Argv()))
		} else {
			fmt.Fprintf(out, "    command:           (sync only)\n")
		}
	}

	if len(warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, w := range warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	fmt.Fprintf(out, "\nConfiguration is valid\n")
	return nil
}

// environmentWarnings reports problems that only show up at delivery time.
func environmentWarnings(cfg *config.Config) []string {
	var warnings []string

	if _, err := exec.LookPath(cfg.GitBinary); err != nil {
		warnings = append(warnings, fmt.Sprintf("git binary '%s' not found: %v", cfg.GitBinary, err))
	}

	for _, repo := range cfg.Repos {
		if !fileutil.IsGitWorkingCopy(repo.RepoDirectory) {
			warnings = append(warnings, fmt.Sprintf("repo '%s': %s is not a git working copy", repo.Identifier, repo.RepoDirectory))
		}
		if !fileutil.DirExists(repo.WorkingDirectory) {
			warnings = append(warnings, fmt.Sprintf("repo '%s': working directory %s does not exist", repo.Identifier, repo.WorkingDirectory))
		}
	}

	return warnings
}

func describeEvents(repo *config.Repo) string {
	if len(repo.Events) == 0 {
		return "all"
	}
	names := make([]string, len(repo.Events))
	for i, k := range repo.Events {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
