package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	gh "github.com/google/go-github/v57/github"
)

// StatusCode returns the upstream HTTP status carried by err, or 0 when the
// request never produced a response.
func StatusCode(err error) int {
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return rateErr.Response.StatusCode
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.Response != nil {
		return abuseErr.Response.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether GitHub rejected the credential (401 or 403).
// Rate limiting is not an authorization failure.
func IsUnauthorized(err error) bool {
	var respErr *gh.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return false
	}
	code := respErr.Response.StatusCode
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsUnreachable reports whether the request failed below HTTP: DNS lookup,
// connection refused, or a timeout.
func IsUnreachable(err error) bool {
	if err == nil || StatusCode(err) != 0 {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

// Describe turns an upstream failure into a user-readable message that keeps
// connectivity problems apart from rejected requests.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case IsUnreachable(err):
		return fmt.Sprintf("cannot reach GitHub (network or DNS failure): %v", err)
	case IsUnauthorized(err):
		return fmt.Sprintf("GitHub rejected the request (HTTP %d): check the repository access and your GitHub connection", StatusCode(err))
	}
	if code := StatusCode(err); code != 0 {
		var respErr *gh.ErrorResponse
		if errors.As(err, &respErr) && respErr.Message != "" {
			return fmt.Sprintf("GitHub API error (HTTP %d): %s", code, respErr.Message)
		}
		return fmt.Sprintf("GitHub API error (HTTP %d)", code)
	}
	return fmt.Sprintf("GitHub request failed: %v", err)
}
