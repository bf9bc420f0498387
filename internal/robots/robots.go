// Package robots gates encyclopedia API requests on the host's robots.txt.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"linkchaser/internal/config"
)

const maxRobotsBytes = 512 * 1024

// Reason explains a Decision.
type Reason string

const (
	ReasonNotRespected Reason = "not_respected"
	ReasonOverride     Reason = "override"
	ReasonUnavailable  Reason = "robots_unavailable"
	ReasonServerError  Reason = "robots_server_error"
	ReasonNoGroup      Reason = "no_group"
	ReasonRule         Reason = "rule"
	ReasonInvalidURL   Reason = "invalid_url"
)

// Decision is the verdict for one request URL.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Agent decides whether API requests may be sent. Rules are fetched once per
// host and kept for the configured TTL. A missing or unreachable robots.txt
// allows everything; a 5xx answer disallows everything until the TTL expires.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool
	overrides map[string]struct{}

	mu    sync.Mutex
	hosts map[string]hostRules
}

type hostRules struct {
	expires     time.Time
	data        *robotstxt.RobotsData // nil when robots.txt was missing or unavailable
	disallowAll bool
}

// NewAgent constructs a robots agent from configuration.
func NewAgent(cfg config.RobotsConfig, client *http.Client) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL.Duration
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		if host = normalizeHost(host); host != "" {
			overrides[host] = struct{}{}
		}
	}
	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		overrides: overrides,
		hosts:     make(map[string]hostRules),
	}
}

// Allowed reports whether target may be requested.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	return a.Check(ctx, target).Allowed
}

// Check evaluates target against robots.txt. API calls differ only in their
// query string, so rules are matched against the path and query together.
func (a *Agent) Check(ctx context.Context, target *url.URL) Decision {
	if target == nil || !target.IsAbs() || target.Host == "" {
		return Decision{Allowed: false, Reason: ReasonInvalidURL}
	}
	if !a.respect {
		return Decision{Allowed: true, Reason: ReasonNotRespected}
	}
	if _, ok := a.overrides[normalizeHost(target.Hostname())]; ok {
		return Decision{Allowed: true, Reason: ReasonOverride}
	}

	rules := a.lookup(ctx, target)
	if rules.disallowAll {
		return Decision{Allowed: false, Reason: ReasonServerError}
	}
	if rules.data == nil {
		return Decision{Allowed: true, Reason: ReasonUnavailable}
	}
	group := rules.data.FindGroup(a.userAgent)
	if group == nil {
		return Decision{Allowed: true, Reason: ReasonNoGroup}
	}
	return Decision{Allowed: group.Test(target.RequestURI()), Reason: ReasonRule}
}

func (a *Agent) lookup(ctx context.Context, target *url.URL) hostRules {
	host := normalizeHost(target.Host)

	a.mu.Lock()
	cached, ok := a.hosts[host]
	a.mu.Unlock()
	if ok && time.Now().Before(cached.expires) {
		return cached
	}

	rules, err := a.fetch(ctx, target.Scheme, target.Host)
	if err != nil {
		rules = hostRules{}
	}
	rules.expires = time.Now().Add(a.ttl)
	a.mu.Lock()
	a.hosts[host] = rules
	a.mu.Unlock()
	return rules
}

func (a *Agent) fetch(ctx context.Context, scheme, host string) (hostRules, error) {
	robotsURL := url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return hostRules{}, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return hostRules{}, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return hostRules{disallowAll: true}, nil
	case resp.StatusCode >= http.StatusBadRequest:
		return hostRules{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return hostRules{}, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return hostRules{}, fmt.Errorf("parse robots.txt: %w", err)
	}
	return hostRules{data: data}, nil
}

// Purge forgets the cached rules of host.
func (a *Agent) Purge(host string) {
	host = normalizeHost(host)
	if host == "" {
		return
	}
	a.mu.Lock()
	delete(a.hosts, host)
	a.mu.Unlock()
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
