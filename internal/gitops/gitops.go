// Package gitops commits the files an update run changed onto a
// dedicated branch of the working repository, and optionally pushes it.
package gitops

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/nethserver/gitops-updater/internal/config"
	"github.com/nethserver/gitops-updater/internal/report"
)

// Committer records applied updates in git.
type Committer struct {
	RepoPath string
	Branch   string
	Name     string
	Email    string
	Token    string
	Push     bool
}

// NewCommitter builds a Committer for the repository at repoPath.
func NewCommitter(repoPath, token string, cfg config.GitConfig) *Committer {
	name := cfg.AuthorName
	if name == "" {
		name = "gitops-updater"
	}
	email := cfg.AuthorEmail
	if email == "" {
		email = "gitops-updater@localhost"
	}
	return &Committer{
		RepoPath: repoPath,
		Branch:   cfg.Branch,
		Name:     name,
		Email:    email,
		Token:    token,
		Push:     cfg.Push,
	}
}

// Commit stages every file the report touched and commits them on the
// update branch. A report without changes is a no-op. Returns the commit
// hash, or an empty string when nothing was committed.
func (c *Committer) Commit(rep *report.Report) (string, error) {
	if !rep.Changed() {
		return "", nil
	}

	repo, err := git.PlainOpen(c.RepoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository %s: %v", c.RepoPath, err)
	}
	workTree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %v", err)
	}

	if err := c.checkoutBranch(repo, workTree); err != nil {
		return "", err
	}

	for _, file := range changedFiles(rep) {
		relPath, err := filepath.Rel(c.RepoPath, file)
		if err != nil || strings.HasPrefix(relPath, "..") {
			relPath = file
		}
		if _, err := workTree.Add(relPath); err != nil {
			return "", fmt.Errorf("failed to add file %s: %v", relPath, err)
		}
	}

	commit, err := workTree.Commit(commitMessage(rep), &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.Name,
			Email: c.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit changes: %v", err)
	}

	if c.Push {
		if err := c.push(repo); err != nil {
			return commit.String(), err
		}
	}
	return commit.String(), nil
}

// checkoutBranch switches to the update branch, creating it from the
// current HEAD if it does not exist yet.
func (c *Committer) checkoutBranch(repo *git.Repository, workTree *git.Worktree) error {
	branchRef := plumbing.NewBranchReferenceName(c.Branch)
	_, err := repo.Reference(branchRef, true)
	create := err != nil

	err = workTree.Checkout(&git.CheckoutOptions{
		Branch: branchRef,
		Create: create,
	})
	if err != nil {
		return fmt.Errorf("failed to checkout branch %s: %v", c.Branch, err)
	}
	return nil
}

func (c *Committer) push(repo *git.Repository) error {
	options := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", c.Branch, c.Branch)),
		},
	}
	if c.Token != "" {
		options.Auth = &http.BasicAuth{
			Username: "token",
			Password: c.Token,
		}
	}
	if err := repo.Push(options); err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("failed to push branch %s: %v", c.Branch, err)
	}
	return nil
}

func changedFiles(rep *report.Report) []string {
	seen := make(map[string]bool)
	var files []string
	for _, o := range rep.Outcomes {
		if o.Status != report.StatusUpdated {
			continue
		}
		for _, file := range o.Files {
			if !seen[file] {
				seen[file] = true
				files = append(files, file)
			}
		}
	}
	return files
}

// commitMessage summarizes the run: one subject line with the update
// count, one body line per updated item.
func commitMessage(rep *report.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "chore: update %d dependencies\n\n", rep.Count(report.StatusUpdated))
	for _, o := range rep.Outcomes {
		if o.Status == report.StatusUpdated {
			fmt.Fprintf(&b, "- %s: %s -> %s\n", o.ItemID, o.From, o.To)
		}
	}
	return b.String()
}
