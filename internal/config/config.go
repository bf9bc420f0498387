package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything required to run a link-chasing traversal.
type Config struct {
	Wiki       WikiConfig       `yaml:"wiki"`
	Trace      TraceConfig      `yaml:"trace"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Robots     RobotsConfig     `yaml:"robots"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// WikiConfig describes the encyclopedia endpoints and HTTP client settings.
type WikiConfig struct {
	APIURL         string            `yaml:"api_url"`
	ArticleBaseURL string            `yaml:"article_base_url"`
	RandomURL      string            `yaml:"random_url"`
	UserAgent      string            `yaml:"user_agent"`
	Headers        map[string]string `yaml:"headers"`
	ProxyURL       string            `yaml:"proxy_url"`
	RequestTimeout Duration          `yaml:"request_timeout"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes"`
}

// TraceConfig controls the traversal itself.
type TraceConfig struct {
	Target        string          `yaml:"target"`
	WholeDocument bool            `yaml:"whole_document"`
	FetchDelay    Duration        `yaml:"fetch_delay"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig applies a token bucket on top of the fixed fetch delay.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// PreprocessConfig lists the markup removed before parentheses are stripped.
type PreprocessConfig struct {
	DropSelectors  []string `yaml:"drop_selectors"`
	TrimWhitespace bool     `yaml:"trim_whitespace"`
}

// RobotsConfig configures robots.txt handling for the API host.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// DefaultDropSelectors are the non-content elements removed from every document.
var DefaultDropSelectors = []string{
	".reference",
	"span",
	"div",
	".thumb",
	"table",
	"a.new",
	"i",
	"#coordinates",
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Wiki: WikiConfig{
			APIURL:         "https://en.wikipedia.org/w/api.php",
			ArticleBaseURL: "http://en.wikipedia.org/wiki/",
			RandomURL:      "http://en.wikipedia.org/wiki/Special:Random",
			UserAgent:      "linkchaser/1.0",
			Headers:        map[string]string{},
			RequestTimeout: DurationFrom(10 * time.Second),
			MaxBodyBytes:   8 * 1024 * 1024,
		},
		Trace: TraceConfig{
			Target:     "Philosophy",
			FetchDelay: DurationFrom(500 * time.Millisecond),
		},
		Preprocess: PreprocessConfig{
			DropSelectors:  append([]string(nil), DefaultDropSelectors...),
			TrimWhitespace: true,
		},
		Robots: RobotsConfig{
			Respect:   false,
			Overrides: []string{},
			UserAgent: "linkchaser/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Structured: false,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file. An empty
// path yields the validated defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := Default()
		cfg.normalise()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the configuration.
func (c Config) Validate() error {
	api, err := url.Parse(c.Wiki.APIURL)
	if err != nil {
		return fmt.Errorf("wiki.api_url: %w", err)
	}
	if !api.IsAbs() || api.Host == "" {
		return fmt.Errorf("wiki.api_url must be an absolute url (got %q)", c.Wiki.APIURL)
	}
	if c.Wiki.ArticleBaseURL == "" {
		return errors.New("wiki.article_base_url must be set")
	}
	if c.Wiki.RandomURL == "" {
		return errors.New("wiki.random_url must be set")
	}
	if c.Wiki.UserAgent == "" {
		return errors.New("wiki.user_agent must be set")
	}
	if c.Wiki.MaxBodyBytes <= 0 {
		return fmt.Errorf("wiki.max_body_bytes must be > 0 (got %d)", c.Wiki.MaxBodyBytes)
	}
	if c.Wiki.RequestTimeout.Duration < 0 {
		return fmt.Errorf("wiki.request_timeout must be >= 0 (got %s)", c.Wiki.RequestTimeout)
	}
	if c.Trace.Target == "" {
		return errors.New("trace.target must be set")
	}
	if c.Trace.FetchDelay.Duration < 0 {
		return fmt.Errorf("trace.fetch_delay must be >= 0 (got %s)", c.Trace.FetchDelay)
	}
	if rl := c.Trace.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("trace.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	if len(c.Preprocess.DropSelectors) == 0 {
		return errors.New("preprocess.drop_selectors must include at least one selector")
	}
	if c.Robots.Respect && c.Robots.UserAgent == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) normalise() {
	c.Wiki.APIURL = strings.TrimSpace(c.Wiki.APIURL)
	c.Wiki.ArticleBaseURL = strings.TrimSpace(c.Wiki.ArticleBaseURL)
	if c.Wiki.ArticleBaseURL != "" && !strings.HasSuffix(c.Wiki.ArticleBaseURL, "/") {
		c.Wiki.ArticleBaseURL += "/"
	}
	c.Wiki.RandomURL = strings.TrimSpace(c.Wiki.RandomURL)
	c.Wiki.UserAgent = strings.TrimSpace(c.Wiki.UserAgent)
	c.Wiki.ProxyURL = strings.TrimSpace(c.Wiki.ProxyURL)
	if c.Wiki.Headers == nil {
		c.Wiki.Headers = make(map[string]string)
	}

	c.Trace.Target = strings.TrimSpace(c.Trace.Target)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Metrics.Addr = strings.TrimSpace(c.Metrics.Addr)
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	// Selectors are case-sensitive (ids, classes), so only trim and dedupe.
	if len(c.Preprocess.DropSelectors) > 0 {
		seen := make(map[string]struct{}, len(c.Preprocess.DropSelectors))
		cleaned := make([]string, 0, len(c.Preprocess.DropSelectors))
		for _, sel := range c.Preprocess.DropSelectors {
			sel = strings.TrimSpace(sel)
			if sel == "" {
				continue
			}
			if _, ok := seen[sel]; ok {
				continue
			}
			seen[sel] = struct{}{}
			cleaned = append(cleaned, sel)
		}
		c.Preprocess.DropSelectors = cleaned
	}
	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}

// Enabled reports whether the token bucket is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}
