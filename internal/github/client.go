// Package github wraps the upstream GitHub REST API calls used by sprintdesk.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com/"

// MaxPerPage is the largest page size GitHub accepts.
const MaxPerPage = 100

// Config holds the upstream client settings.
type Config struct {
	APIURL     string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client // optional base client; its transport is reused
}

// Client builds per-call go-github clients, authenticated with the caller's
// token or anonymous when the token is empty.
type Client struct {
	baseURL   *url.URL
	userAgent string
	base      http.RoundTripper
	timeout   time.Duration
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	raw := cfg.APIURL
	if raw == "" {
		raw = DefaultAPIURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing github api url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}

	return &Client{baseURL: u, userAgent: cfg.UserAgent, base: base, timeout: timeout}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) forToken(token string) *gh.Client {
	transport := c.base
	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   c.base,
		}
	}

	client := gh.NewClient(&http.Client{Transport: transport, Timeout: c.timeout})
	client.BaseURL = c.baseURL
	if c.userAgent != "" {
		client.UserAgent = c.userAgent
	}
	return client
}

// ListIssues returns every issue of owner/repo in the given state ("open",
// "closed" or "all"), following pagination. Pull requests are included; the
// caller filters them with IsPullRequest.
func (c *Client) ListIssues(ctx context.Context, token, owner, repo, state string) ([]*gh.Issue, error) {
	if state == "" {
		state = "all"
	}
	client := c.forToken(token)
	opts := &gh.IssueListByRepoOptions{
		State:       state,
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: MaxPerPage},
	}

	var all []*gh.Issue
	for {
		issues, resp, err := client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issues for %s/%s: %w", owner, repo, err)
		}
		all = append(all, issues...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	slog.Debug("listed upstream issues", "repo", owner+"/"+repo, "count", len(all), "authenticated", token != "")
	return all, nil
}

// ListIssueEvents returns the first page of the repository's issue-event stream.
func (c *Client) ListIssueEvents(ctx context.Context, token, owner, repo string, perPage int) ([]*gh.IssueEvent, error) {
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	events, _, err := c.forToken(token).Issues.ListRepositoryEvents(ctx, owner, repo, &gh.ListOptions{PerPage: perPage})
	if err != nil {
		return nil, fmt.Errorf("listing issue events for %s/%s: %w", owner, repo, err)
	}
	return events, nil
}

// CurrentUser returns the login of the token's owner.
func (c *Client) CurrentUser(ctx context.Context, token string) (string, error) {
	user, _, err := c.forToken(token).Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("fetching authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}

// CreateIssue opens a new upstream issue and returns it.
func (c *Client) CreateIssue(ctx context.Context, token, owner, repo, title string, body *string) (*gh.Issue, error) {
	issue, _, err := c.forToken(token).Issues.Create(ctx, owner, repo, &gh.IssueRequest{
		Title: gh.String(title),
		Body:  body,
	})
	if err != nil {
		return nil, fmt.Errorf("creating issue in %s/%s: %w", owner, repo, err)
	}
	return issue, nil
}

// CloseIssue sets the upstream issue state to closed.
func (c *Client) CloseIssue(ctx context.Context, token, owner, repo string, number int) error {
	_, _, err := c.forToken(token).Issues.Edit(ctx, owner, repo, number, &gh.IssueRequest{
		State: gh.String("closed"),
	})
	if err != nil {
		return fmt.Errorf("closing issue #%d in %s/%s: %w", number, owner, repo, err)
	}
	return nil
}
