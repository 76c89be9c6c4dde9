// Package proxypool implements the rotating proxy selection and retrying
// HTTP client described in spec §4.3/§5. Proxy health backoff tracking is
// adapted from the teacher's internal/ratelimit.Handler (same "记录事件,
// schedule next retry" shape) generalized from one entry per provider to
// one entry per proxy.
package proxypool

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Config mirrors the Python original's requests.Session construction
// exactly (spec §4.3): total retries, exponential backoff factor, the status
// codes that trigger a retry, and the shared connection pool size.
type Config struct {
	TotalRetries    int
	BackoffFactor   float64
	RetryStatuses   map[int]bool
	ConnPoolSize    int
	RequestTimeout  time.Duration
}

// DefaultConfig matches requests.Session(Retry(total=10, backoff_factor=1,
// status_forcelist=[500,502,503,504]), HTTPAdapter(pool_maxsize=50)).
func DefaultConfig() Config {
	return Config{
		TotalRetries:   10,
		BackoffFactor:  1,
		RetryStatuses:  map[int]bool{500: true, 502: true, 503: true, 504: true},
		ConnPoolSize:   50,
		RequestTimeout: 30 * time.Second,
	}
}

// Pool holds the caller-provided set of proxy URLs and a small unhealthy
// cache: a proxy passed to MarkUnhealthy is skipped by Next until its
// cooldown ends (unless every proxy is cooling down). Client.Fetch does not
// call MarkUnhealthy, so a failed request does not by itself put its proxy
// on cooldown.
type Pool struct {
	mu        sync.Mutex
	proxies   []*url.URL
	unhealthy *lru.Cache[string, time.Time]
	rng       *rand.Rand
}

// New builds a Pool from a map of id->URL (the task descriptor's proxy
// set, spec §6), filtering to http/https schemes the way the Python
// original's get_proxies() filters to entries containing "http".
func New(proxies map[string]string) (*Pool, error) {
	cache, err := lru.New[string, time.Time](64)
	if err != nil {
		return nil, fmt.Errorf("proxypool: %w", err)
	}
	p := &Pool{unhealthy: cache, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, raw := range proxies {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if u.Scheme == "http" || u.Scheme == "https" {
			p.proxies = append(p.proxies, u)
		}
	}
	if len(p.proxies) == 0 {
		return nil, fmt.Errorf("proxypool: no usable http/https proxies provided")
	}
	return p, nil
}

// Next picks one proxy uniformly at random, on every call — spec §4.3
// says the client picks a proxy "on each outbound request", which the
// Python original actually does once per session; this implementation
// follows the spec's stated per-request semantics rather than the
// original's literal once-per-session behavior.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	candidates := p.proxies
	if healthy := p.filterHealthy(candidates); len(healthy) > 0 {
		candidates = healthy
	}
	return candidates[p.rng.Intn(len(candidates))]
}

func (p *Pool) filterHealthy(all []*url.URL) []*url.URL {
	now := time.Now()
	out := make([]*url.URL, 0, len(all))
	for _, u := range all {
		if until, ok := p.unhealthy.Get(u.String()); ok && now.Before(until) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// MarkUnhealthy temporarily removes a proxy from rotation for cooldown,
// starting from the call itself, mirroring the teacher's rate-limit cooldown idea but scoped to
// a single proxy rather than a whole provider.
func (p *Pool) MarkUnhealthy(u *url.URL, cooldown time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unhealthy.Add(u.String(), time.Now().Add(cooldown))
}

// HTTPClient returns an *http.Client bound to one proxy from the pool
// (picked fresh for each call), sized per Config's connection pool.
func (p *Pool) HTTPClient(cfg Config) *http.Client {
	proxy := p.Next()
	transport := &http.Transport{
		Proxy:               http.ProxyURL(proxy),
		MaxIdleConns:        cfg.ConnPoolSize,
		MaxIdleConnsPerHost: cfg.ConnPoolSize,
		MaxConnsPerHost:     cfg.ConnPoolSize,
	}
	return &http.Client{Timeout: cfg.RequestTimeout, Transport: transport}
}
