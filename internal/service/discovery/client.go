package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/repository"
	"CandlePull/pkg/cache"
	xhttp "CandlePull/pkg/http"
	"CandlePull/pkg/logger"
)

type Config struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout" default:"3s"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
}

// Client lists instruments from an HTTP endpoint answering [{"name": ...}].
type Client struct {
	url   string
	ttl   time.Duration
	http  *xhttp.Client
	cache cache.Service
	log   *logger.Logger
}

var _ repository.InstrumentDiscovery = (*Client)(nil)

type Option func(*Client)

// WithCache memoizes the listing for the configured TTL.
func WithCache(c cache.Service) Option {
	return func(cl *Client) { cl.cache = c }
}

func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	c := &Client{
		url:  cfg.URL,
		ttl:  cfg.CacheTTL,
		http: xhttp.NewClient(xhttp.WithTimeout(timeout)),
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type entry struct {
	Name string `json:"name"`
}

func (c *Client) List(ctx context.Context) ([]string, error) {
	if c.cache == nil || c.ttl <= 0 {
		return c.fetch(ctx)
	}
	return cache.GetOrLoad(ctx, c.cache, cache.GenerateKey("discovery", c.url), c.ttl, c.fetch)
}

func (c *Client) fetch(ctx context.Context) ([]string, error) {
	var entries []entry
	if err := c.http.GetJSON(ctx, c.url, &entries); err != nil {
		return nil, errs.SourceUnavailable(fmt.Sprintf("instrument discovery at %s failed", c.url), err)
	}

	names := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name := strings.ToUpper(strings.TrimSpace(e.Name))
		if name == "" {
			return nil, errs.Resolution("discovery returned an instrument without a name")
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	c.log.Debug("instruments discovered", logger.Strings("instruments", names))
	return names, nil
}

// Static serves a fixed instrument list when no discovery endpoint is configured.
type Static []string

func (s Static) List(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}
