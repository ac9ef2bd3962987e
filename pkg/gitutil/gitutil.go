// Package gitutil clones and checks out the repositories Argus analyzes,
// using go-git instead of shelling out to the git binary.
package gitutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/purs3lab/Argus/pkg/log"
)

var gitLogger = log.Get("gitutil")

// RefKind names the three ways a clone can be pinned, matching
// pkg/ir.RefSpec.Kind.
type RefKind string

const (
	RefBranch RefKind = "branch"
	RefTag    RefKind = "tag"
	RefCommit RefKind = "commit"
)

// Target describes what revision to check out after cloning.
type Target struct {
	Kind  RefKind
	Value string
}

// Credentials is an optional `user:token` pair extracted from a
// `--url` flag's `USER:TOKEN@host/...` prefix.
type Credentials struct {
	Username string
	Password string
}

// CloneOrOpen clones repoURL into folder if it doesn't already exist,
// otherwise opens the existing clone, then checks out target. A nil
// creds disables authentication.
func CloneOrOpen(repoURL, folder string, creds *Credentials, target Target) (*git.Repository, error) {
	var repo *git.Repository
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		gitLogger.Debugf("cloning %s to %s", repoURL, folder)
		opts := &git.CloneOptions{URL: repoURL}
		if creds != nil {
			opts.Auth = &http.BasicAuth{Username: creds.Username, Password: creds.Password}
		}
		repo, err = git.PlainClone(folder, false, opts)
		if err != nil {
			return nil, fmt.Errorf("clone %s: %w", repoURL, err)
		}
	} else {
		gitLogger.Debugf("repo already exists at %s, not cloning again", folder)
		repo, err = git.PlainOpen(folder)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", folder, err)
		}
	}
	if err := checkout(repo, target); err != nil {
		return nil, err
	}
	return repo, nil
}

// checkout switches the worktree to target with a forced checkout. No
// stash is made: any working-tree changes are discarded.
func checkout(repo *git.Repository, target Target) error {
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	var hash plumbing.Hash
	switch target.Kind {
	case RefCommit:
		hash = plumbing.NewHash(target.Value)
	case RefTag:
		ref, err := repo.Tag(target.Value)
		if err != nil {
			gitLogger.Errorf("error switching to tag %s: %v", target.Value, err)
			return fmt.Errorf("resolve tag %s: %w", target.Value, err)
		}
		hash = ref.Hash()
	case RefBranch:
		ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", target.Value), true)
		if err != nil {
			gitLogger.Errorf("error switching to branch %s: %v", target.Value, err)
			return fmt.Errorf("resolve branch %s: %w", target.Value, err)
		}
		hash = ref.Hash()
	default:
		return fmt.Errorf("unknown ref kind %q", target.Kind)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("checkout %s %s: %w", target.Kind, target.Value, err)
	}
	return nil
}

// ParseCredentialedURL splits a `USER:TOKEN@github.com/org/repo` style
// URL (the --url flag's optional credential prefix) into its
// credentials and the bare URL go-git should clone.
func ParseCredentialedURL(raw string) (string, *Credentials) {
	scheme := ""
	rest := raw
	for _, p := range []string{"https://", "http://"} {
		if strings.HasPrefix(raw, p) {
			scheme = p
			rest = raw[len(p):]
			break
		}
	}
	at := strings.Index(rest, "@")
	if at == -1 {
		return raw, nil
	}
	cred := rest[:at]
	host := rest[at+1:]
	parts := strings.SplitN(cred, ":", 2)
	creds := &Credentials{Username: parts[0]}
	if len(parts) == 2 {
		creds.Password = parts[1]
	}
	if scheme == "" {
		scheme = "https://"
	}
	return scheme + host, creds
}
