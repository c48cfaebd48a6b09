package github

import (
	"fmt"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client is a GitHub API client that sleeps through primary and secondary
// rate limits instead of failing.
type Client struct {
	*github.Client
}

// ClientOptions configures API access. Both fields are optional.
type ClientOptions struct {
	Token string
	// BaseURL points at a GitHub Enterprise server, e.g. https://ghe.example.com/.
	BaseURL string
}

// NewClient builds a client. Without a token requests are anonymous and
// limited to 60 per hour.
func NewClient(opts ClientOptions) (*Client, error) {
	waiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, fmt.Errorf("create rate limit waiter: %w", err)
	}

	gh := github.NewClient(waiter)
	if opts.BaseURL != "" {
		gh, err = gh.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url %q: %w", opts.BaseURL, err)
		}
	}
	if opts.Token != "" {
		gh = gh.WithAuthToken(opts.Token)
	}
	return &Client{Client: gh}, nil
}
