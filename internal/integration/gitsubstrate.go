// Package integration wraps the external processes agentpilot depends on.
// The only one the core requires is a checkpoint-capable persistence
// substrate, implemented here on top of the git CLI.
package integration

import (
	"fmt"
	"os/exec"
	"strings"
)

// GitSubstrate implements the core.Substrate contract against a git
// repository: pending changes are the working tree's dirty state, a
// checkpoint is one commit, and the opaque checkpoint id is the commit SHA.
// Git's own commit atomicity is what makes a checkpoint indivisible.
type GitSubstrate struct {
	repoPath string
}

// NewGitSubstrate creates a substrate over the git repository at repoPath.
func NewGitSubstrate(repoPath string) *GitSubstrate {
	return &GitSubstrate{repoPath: repoPath}
}

// Init initializes a git repository at repoPath if one does not exist yet.
func (g *GitSubstrate) Init() error {
	if _, err := g.git("rev-parse", "--git-dir"); err == nil {
		return nil
	}
	if _, err := g.git("init"); err != nil {
		return fmt.Errorf("initializing substrate repository: %w", err)
	}
	return nil
}

// HasPendingChanges reports whether the working tree has anything to commit.
func (g *GitSubstrate) HasPendingChanges() (bool, error) {
	out, err := g.git("status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("checking substrate state: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

// CommitAll stages and commits every pending change as one commit and
// returns the resulting commit SHA. Git refuses conflicting or mid-merge
// states on its own; that refusal surfaces here as an error with the git
// output attached.
func (g *GitSubstrate) CommitAll(label string) (string, error) {
	if label == "" {
		return "", fmt.Errorf("committing: label must not be empty")
	}

	if _, err := g.git("add", "-A"); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}
	if _, err := g.git("commit", "-m", label); err != nil {
		return "", fmt.Errorf("committing changes: %w", err)
	}

	sha, err := g.git("rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving checkpoint id: %w", err)
	}
	return strings.TrimSpace(sha), nil
}

// git runs a git command in the substrate repository and returns its
// combined output.
func (g *GitSubstrate) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return string(output), nil
}
