// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/fromager-project/fromager/internal/httpx"
	"github.com/fromager-project/fromager/internal/pep440"
	"github.com/fromager-project/fromager/internal/ratex"
	"github.com/fromager-project/fromager/pkg/requirement"
	"github.com/pkg/errors"
)

// tagResponse is the subset of the GitHub/GitLab tags API response this
// provider needs.
type tagResponse struct {
	Name string `json:"name"`
}

// GitHubTagProvider resolves candidates from a repository's git tags via
// the GitHub REST API, authenticated with GITHUB_TOKEN when present
// (spec.md §4.5, §6).
type GitHubTagProvider struct {
	Client     httpx.BasicClient
	Owner      string
	Repo       string
	TagMatcher *regexp.Regexp // single capture group extracting the version
	Limiter    *ratex.BackoffLimiter
}

func (p GitHubTagProvider) Name() string { return "github_tag" }

func (p GitHubTagProvider) Resolve(ctx context.Context, req requirement.Requirement, opts Options) ([]requirement.Candidate, error) {
	u := fmt.Sprintf("https://api.github.com/repos/%s/%s/tags?per_page=100", p.Owner, p.Repo)
	return resolveTagsLike(ctx, p.Client, p.Limiter, u, req.Name, p.TagMatcher)
}

// GitLabTagProvider is the GitLab equivalent, hitting the GitLab REST API
// (optionally with a private token from env).
type GitLabTagProvider struct {
	Client     httpx.BasicClient
	ProjectID  string // numeric ID or URL-encoded "group%2Fproject"
	TagMatcher *regexp.Regexp
	Limiter    *ratex.BackoffLimiter
}

func (p GitLabTagProvider) Name() string { return "gitlab_tag" }

func (p GitLabTagProvider) Resolve(ctx context.Context, req requirement.Requirement, opts Options) ([]requirement.Candidate, error) {
	u := fmt.Sprintf("https://gitlab.com/api/v4/projects/%s/repository/tags?per_page=100", p.ProjectID)
	return resolveTagsLike(ctx, p.Client, p.Limiter, u, req.Name, p.TagMatcher)
}

func resolveTagsLike(ctx context.Context, client httpx.BasicClient, limiter *ratex.BackoffLimiter, url, name string, tagMatcher *regexp.Regexp) ([]requirement.Candidate, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching tags")
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		if limiter != nil {
			if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
				if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
					limiter.ResetAfter(time.Until(time.Unix(epoch, 0)))
				}
			}
			limiter.Backoff()
		}
		return nil, errors.Errorf("rate limited fetching tags: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching tags: %s", resp.Status)
	}
	if limiter != nil {
		limiter.Success()
	}
	var tags []tagResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, errors.Wrap(err, "decoding tags response")
	}
	var out []requirement.Candidate
	for _, t := range tags {
		versionStr := t.Name
		if tagMatcher != nil {
			m := tagMatcher.FindStringSubmatch(t.Name)
			if m == nil || len(m) < 2 {
				continue
			}
			versionStr = m[1]
		}
		v, err := pep440.Parse(versionStr)
		if err != nil {
			continue
		}
		out = append(out, requirement.Candidate{
			Name:           name,
			Version:        v,
			RetrieveURL:    t.Name,
			RetrieveMethod: requirement.MethodGitHTTPS,
		})
	}
	return out, nil
}

var (
	_ Provider = GitHubTagProvider{}
	_ Provider = GitLabTagProvider{}
)
