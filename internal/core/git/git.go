// Package git provides the read-only git queries a review session needs.
package git

import (
	"context"
	"strings"
)

// Git defines git operations needed by hive-review.
type Git interface {
	// RemoteURL returns the origin remote URL for dir.
	RemoteURL(ctx context.Context, dir string) (string, error)
	// Branch returns the current branch name, or short commit SHA if in detached HEAD state.
	Branch(ctx context.Context, dir string) (string, error)
	// DiffStats returns the number of lines added and deleted compared to HEAD.
	DiffStats(ctx context.Context, dir string) (additions, deletions int, err error)
	// GetDiff returns the unified diff selected by opts.
	GetDiff(ctx context.Context, dir string, opts DiffOptions) (string, error)
}

// ExtractOwnerRepo returns the last two path segments of a remote URL,
// with any ".git" suffix removed. Both scp-style and URL remotes work.
func ExtractOwnerRepo(remote string) (owner, repo string) {
	remote = strings.TrimSuffix(strings.TrimSpace(remote), ".git")
	if i := strings.Index(remote, "://"); i != -1 {
		remote = remote[i+3:]
	}
	remote = strings.ReplaceAll(remote, ":", "/")

	parts := strings.Split(remote, "/")
	if len(parts) < 3 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}
