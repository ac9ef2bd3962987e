// Package ghapi resolves action/workflow references the local clone
// can't answer on its own — today, just `@latest`, which names no real
// git ref and has to be turned into the repository's actual latest
// release tag before pkg/gitutil can check anything out.
package ghapi

import (
	"context"
	"fmt"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/purs3lab/Argus/pkg/log"
)

var ghapiLogger = log.Get("ghapi")

// Client wraps a go-github client, optionally authenticated with the
// token from a `USER:TOKEN@` --url prefix.
type Client struct {
	gh *github.Client
}

// New builds a Client. An empty token yields an unauthenticated client,
// which is fine for public repositories but subject to GitHub's lower
// anonymous rate limit.
func New(token string) *Client {
	if token == "" {
		return &Client{gh: github.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &Client{gh: github.NewClient(httpClient)}
}

// ResolveLatestTag returns owner/repo's latest release tag name, the
// same value GitHub Actions' own `@latest`-resolution semantics use.
func (c *Client) ResolveLatestTag(ctx context.Context, owner, repo string) (string, error) {
	rel, _, err := c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("get latest release for %s/%s: %w", owner, repo, err)
	}
	if rel.TagName == nil {
		return "", fmt.Errorf("latest release for %s/%s has no tag name", owner, repo)
	}
	ghapiLogger.Debugf("resolved %s/%s@latest to tag %s", owner, repo, *rel.TagName)
	return *rel.TagName, nil
}
