// Package gitmeta reads commit metadata for the checkout being published.
package gitmeta

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
)

var ErrNoCommit = errors.New("repository has no commits")

// HeadCommit returns the full hash of HEAD for the repository containing dir.
// Parent directories are searched for the .git directory, the same way
// `git rev-parse HEAD` resolves it.
func HeadCommit(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", errors.Join(ErrNoCommit, err))
	}
	return head.Hash().String(), nil
}
