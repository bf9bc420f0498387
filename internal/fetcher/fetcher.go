package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"linkchaser/pkg/types"
)

var (
	// ErrPageNotFound matches API errors for missing or invalid titles.
	ErrPageNotFound = errors.New("page not found")
	// ErrDisallowed is returned when robots.txt forbids the API request.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// APIError is an error payload returned by the MediaWiki API.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	if e.Info == "" {
		return "api error: " + e.Code
	}
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// Is lets errors.Is(err, ErrPageNotFound) match missing and invalid titles.
func (e *APIError) Is(target error) bool {
	if target != ErrPageNotFound {
		return false
	}
	return e.Code == "missingtitle" || e.Code == "invalidtitle"
}

// Preparer removes non-content markup before the traversal sees it.
type Preparer interface {
	Prepare(markup string) (string, error)
}

// RobotsChecker decides whether a request URL may be fetched.
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Options controls HTTP fetching behaviour.
type Options struct {
	APIURL       string
	RandomURL    string
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
	Preparer     Preparer
	Robots       RobotsChecker
}

// WikiClient fetches documents through the MediaWiki parse API.
type WikiClient struct {
	client       *http.Client
	apiURL       *url.URL
	randomURL    string
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
	preparer     Preparer
	robots       RobotsChecker
}

type parseResponse struct {
	Parse *struct {
		Title  string `json:"title"`
		PageID int64  `json:"pageid"`
		Text   struct {
			Content string `json:"*"`
		} `json:"text"`
	} `json:"parse"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// NewWikiClient constructs a client using the provided options.
func NewWikiClient(opts Options) (*WikiClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 * 1024 * 1024
	}
	apiURL, err := url.Parse(strings.TrimSpace(opts.APIURL))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if !apiURL.IsAbs() {
		return nil, fmt.Errorf("api url %q is not absolute", opts.APIURL)
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &WikiClient{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		apiURL:       apiURL,
		randomURL:    opts.RandomURL,
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
		preparer:     opts.Preparer,
		robots:       opts.Robots,
	}, nil
}

// Fetch retrieves the parsed markup of id. Redirects are resolved by the API
// and the canonical title is returned as the document id. LeadOnly limits the
// markup to section 0.
func (c *WikiClient) Fetch(ctx context.Context, id types.DocumentID, mode types.Mode) (*types.Document, error) {
	if id.IsZero() {
		return nil, errors.New("document id is empty")
	}

	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", id.String())
	params.Set("prop", "text")
	params.Set("format", "json")
	params.Set("redirects", "1")
	if mode == types.LeadOnly {
		params.Set("section", "0")
	}
	reqURL := *c.apiURL
	reqURL.RawQuery = params.Encode()

	if c.robots != nil && !c.robots.Allowed(ctx, &reqURL) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowed, reqURL.String())
	}

	start := time.Now()
	resp, err := c.get(ctx, reqURL.String(), "application/json")
	if err != nil {
		return nil, err
	}
	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	var payload parseResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode api response: %w", err)
	}
	if payload.Error != nil {
		return nil, &APIError{Code: payload.Error.Code, Info: payload.Error.Info}
	}
	if payload.Parse == nil {
		return nil, errors.New("api response has no parse section")
	}

	markup := payload.Parse.Text.Content
	if c.preparer != nil {
		markup, err = c.preparer.Prepare(markup)
		if err != nil {
			return nil, fmt.Errorf("prepare markup: %w", err)
		}
	}

	resolved := types.NewDocumentID(payload.Parse.Title)
	if resolved.IsZero() {
		resolved = id
	}
	return &types.Document{
		ID:        resolved,
		Markup:    markup,
		Mode:      mode,
		FetchedAt: time.Now(),
		Latency:   time.Since(start),
	}, nil
}

// ResolveStart turns user input into a starting document. Empty input follows
// the random-article URL; a URL is fetched and its final article path used;
// anything else is taken as a title.
func (c *WikiClient) ResolveStart(ctx context.Context, raw string) (types.DocumentID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = c.randomURL
	}
	if raw == "" {
		return "", errors.New("no start page and no random url configured")
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		id := types.NewDocumentID(raw)
		if id.IsZero() {
			return "", fmt.Errorf("invalid start page %q", raw)
		}
		return id, nil
	}

	resp, err := c.get(ctx, u.String(), "text/html,application/xhtml+xml")
	if err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodyBytes))
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("resolve %s: status %d", u, resp.StatusCode)
	}

	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	id := pageFromURL(final)
	if id.IsZero() {
		return "", fmt.Errorf("no page name in %s", final)
	}
	return id, nil
}

// pageFromURL extracts the article title from an article URL.
func pageFromURL(u *url.URL) types.DocumentID {
	if title := u.Query().Get("title"); title != "" {
		return types.NewDocumentID(title)
	}
	p := u.EscapedPath()
	if i := strings.Index(p, "/wiki/"); i >= 0 {
		p = p[i+len("/wiki/"):]
	} else if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	return types.NewDocumentID(p)
}

func (c *WikiClient) get(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}
	return resp, nil
}

func (c *WikiClient) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, c.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", c.maxBodyBytes)
	}
	return body, nil
}

// UseRobots installs a robots.txt gate consulted before every API request.
func (c *WikiClient) UseRobots(r RobotsChecker) {
	c.robots = r
}

// Client exposes the underlying HTTP client for reuse (eg. robots.txt fetches).
func (c *WikiClient) Client() *http.Client {
	if c == nil {
		return nil
	}
	return c.client
}
