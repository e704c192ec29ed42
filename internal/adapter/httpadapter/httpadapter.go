// Package httpadapter performs the network requests of a run over per-domain sessions.
package httpadapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jgivc/acstdl/internal/adapter/session"
	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/config"
)

const (
	maxPageSize = 10 << 20

	headerUserAgent = "User-Agent"
	headerRange     = "Range"
	firstByteRange  = "bytes=0-0"
)

// HeadResponse is what a header-only request observed.
type HeadResponse struct {
	StatusCode    int
	FinalURL      string
	ContentLength int64 // -1 when unknown
	Header        http.Header
}

type SessionCache interface {
	Acquire(domain string) *session.Session
}

type fetcher struct {
	sessions SessionCache
	cfg      *config.HTTPConfig
	log      *slog.Logger
}

func NewFetcher(sessions SessionCache, cfg *config.HTTPConfig, log *slog.Logger) *fetcher {
	return &fetcher{
		sessions: sessions,
		cfg:      cfg,
		log:      log.With(slog.String("item", "Fetcher")),
	}
}

// FetchHead sends HEAD, falling back to a one byte ranged GET when the server rejects HEAD.
// A non success status is returned as *common.HTTPStatusError together with the response.
func (f *fetcher) FetchHead(ctx context.Context, rawURL string) (*HeadResponse, error) {
	sess, err := f.session(rawURL)
	if err != nil {
		return nil, err
	}

	if err := sess.Wait(ctx); err != nil {
		return nil, err
	}

	head, err := f.head(ctx, sess, http.MethodHead, rawURL)
	if err != nil {
		return nil, err
	}

	if head.StatusCode == http.StatusMethodNotAllowed || head.StatusCode == http.StatusNotImplemented {
		f.log.Debug("HEAD rejected, retry with ranged GET", slog.String("url", rawURL), slog.Int("status", head.StatusCode))

		if err := sess.Wait(ctx); err != nil {
			return nil, err
		}

		head, err = f.head(ctx, sess, http.MethodGet, rawURL)
		if err != nil {
			return nil, err
		}
	}

	if head.StatusCode >= http.StatusBadRequest {
		return head, &common.HTTPStatusError{URL: rawURL, StatusCode: head.StatusCode}
	}

	return head, nil
}

func (f *fetcher) head(ctx context.Context, sess *session.Session, method, rawURL string) (*HeadResponse, error) {
	req, err := f.newRequest(ctx, method, rawURL)
	if err != nil {
		return nil, err
	}
	if method == http.MethodGet {
		req.Header.Set(headerRange, firstByteRange)
	}

	resp, err := sess.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &HeadResponse{
		StatusCode:    resp.StatusCode,
		FinalURL:      resp.Request.URL.String(),
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
	}, nil
}

// FetchBody streams the body of rawURL into w and returns the number of bytes written.
func (f *fetcher) FetchBody(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("cannot read body of %s: %w", rawURL, err)
	}

	return n, nil
}

// FetchPage reads a feed page within the request timeout. Pages larger than maxPageSize are truncated.
func (f *fetcher) FetchPage(ctx context.Context, rawURL string) ([]byte, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("cannot read page %s: %w", rawURL, err)
	}

	return content, nil
}

func (f *fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	sess, err := f.session(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := f.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := sess.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()

		return nil, &common.HTTPStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

func (f *fetcher) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create request: %w", err)
	}

	if f.cfg.UserAgent != "" {
		req.Header.Set(headerUserAgent, f.cfg.UserAgent)
	}

	return req, nil
}

func (f *fetcher) session(rawURL string) (*session.Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse url %s: %w", rawURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	return f.sessions.Acquire(u.Hostname()), nil
}
