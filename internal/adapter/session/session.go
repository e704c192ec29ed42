// Package session keeps one keep-alive HTTP session per domain for the lifetime of a run.
package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jgivc/acstdl/internal/config"
)

const (
	maxRedirects        = 10
	dialTimeout         = 10 * time.Second
	keepAlive           = 30 * time.Second
	idleConnTimeout     = 90 * time.Second
	maxIdleConnsPerHost = 4
)

// Session is the shared handle for every request to one domain.
type Session struct {
	Domain  string
	Client  *http.Client
	Limiter *rate.Limiter

	resolver *resolver
}

// Wait blocks until the domain rate limit admits one more request.
func (s *Session) Wait(ctx context.Context) error {
	return s.Limiter.Wait(ctx)
}

func (s *Session) close() {
	s.Client.CloseIdleConnections()
}

type entry struct {
	once    sync.Once
	session *Session
}

// Cache hands out sessions by domain. Concurrent first callers for the same domain share one session.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*entry
	cfg      *config.HTTPConfig
	lookup   lookupFunc
	log      *slog.Logger
}

func NewCache(cfg *config.HTTPConfig, log *slog.Logger) *Cache {
	return &Cache{
		sessions: make(map[string]*entry),
		cfg:      cfg,
		lookup:   net.DefaultResolver.LookupHost,
		log:      log.With(slog.String("item", "SessionCache")),
	}
}

func (c *Cache) Acquire(domain string) *Session {
	domain = strings.ToLower(domain)

	c.mu.Lock()
	e, exists := c.sessions[domain]
	if !exists {
		e = &entry{}
		c.sessions[domain] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.session = c.newSession(domain)
		c.log.Debug("New session", slog.String("domain", domain))
	})

	return e.session
}

// Len returns the number of domains seen so far.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sessions)
}

// Close releases idle connections of every session. The cache must not be used afterwards.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.sessions {
		if e.session != nil {
			e.session.close()
		}
	}
	c.sessions = make(map[string]*entry)
}

func (c *Cache) newSession(domain string) *Session {
	res := &resolver{lookup: c.lookup, addrs: make(map[string][]string)}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return res.dial(ctx, dialer, network, addr)
		},
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !c.cfg.VerifyTLS}, //nolint:gosec
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}

	limit := rate.Inf
	if c.cfg.RatePerDomain > 0 {
		limit = rate.Limit(c.cfg.RatePerDomain)
	}

	return &Session{
		Domain: domain,
		Client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}

				return nil
			},
		},
		Limiter:  rate.NewLimiter(limit, 1),
		resolver: res,
	}
}

type lookupFunc func(ctx context.Context, host string) ([]string, error)

// resolver remembers the addresses of every host dialed through a session.
// Redirects may lead to other hosts, so it is keyed by host too.
type resolver struct {
	mu     sync.Mutex
	lookup lookupFunc
	addrs  map[string][]string
}

func (r *resolver) resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if addrs, exists := r.addrs[host]; exists {
		return addrs, nil
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
	}

	r.addrs[host] = addrs

	return addrs, nil
}

func (r *resolver) dial(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	addrs, err := r.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range addrs {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, lastErr
}
