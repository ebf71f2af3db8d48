package resolver

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/topicgrab/topicgrab/internal/fetcher"
)

// ErrUnresolvedRedirect is returned when an intermediate redirector
// page yields no usable target. Callers must drop the link rather than
// retry: a redirector that resolves to itself would otherwise loop
// forever.
var ErrUnresolvedRedirect = errors.New("redirector did not yield a target URL")

// redirectorScript is the path fragment identifying the forum's
// redirector endpoint. Navigation anchors frequently point at it
// instead of the article itself.
const redirectorScript = "job.php"

// metaRefreshPattern captures the target of an HTML meta refresh, e.g.
// <meta http-equiv="refresh" content="0;url=read.php?tid=123">.
var metaRefreshPattern = regexp.MustCompile(`(?i)url=([^"'>]+)`)

// jsLocationPattern captures a script-based redirect, e.g.
// location.href = 'read.php?tid=123';
var jsLocationPattern = regexp.MustCompile(`location\.href\s*=\s*['"](.*?)['"]`)

// IsRedirector reports whether a URL points at the redirector script
// rather than an article.
func IsRedirector(rawURL string) bool {
	return strings.Contains(rawURL, redirectorScript)
}

// Resolve follows an intermediate redirector URL to its final article
// URL.
//
// The intermediate URL is fetched; if HTTP-level redirects already
// escaped the redirector, the final URL is returned as-is. Otherwise
// the response body is inspected for a meta-refresh target first and a
// script-based location assignment second, with the found fragment
// resolved against the intermediate URL. When neither pattern appears,
// or the resolved target still points at the redirector, Resolve
// returns ErrUnresolvedRedirect.
func Resolve(ctx context.Context, client *fetcher.Client, intermediateURL string) (string, error) {
	resp, err := client.Fetch(ctx, intermediateURL)
	if err != nil {
		return "", err
	}

	resolved := resp.FinalURL
	if !IsRedirector(resolved) {
		return resolved, nil
	}

	target := ""
	if m := metaRefreshPattern.FindStringSubmatch(resp.Text); m != nil {
		target = m[1]
	} else if m := jsLocationPattern.FindStringSubmatch(resp.Text); m != nil {
		target = m[1]
	}
	if target == "" {
		return "", ErrUnresolvedRedirect
	}

	base, err := url.Parse(intermediateURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", ErrUnresolvedRedirect
	}

	final := base.ResolveReference(ref).String()
	if IsRedirector(final) {
		return "", ErrUnresolvedRedirect
	}
	return final, nil
}
