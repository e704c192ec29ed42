// Package probe collects cheap content metadata of a link without downloading it.
package probe

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/acstdl/internal/adapter/httpadapter"
	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/metrics"
)

const (
	headerContentRange = "Content-Range"
	headerLastModified = "Last-Modified"
	headerETag         = "ETag"
)

type Fetcher interface {
	FetchHead(ctx context.Context, url string) (*httpadapter.HeadResponse, error)
}

type MetadataProbe struct {
	fetcher Fetcher
	timeout time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewMetadataProbe(fetcher Fetcher, timeout time.Duration, m *metrics.Metrics, log *slog.Logger) *MetadataProbe {
	return &MetadataProbe{
		fetcher: fetcher,
		timeout: timeout,
		metrics: m,
		log:     log.With(slog.String("item", "MetadataProbe")),
	}
}

// Probe never fails. Network errors are classified into ProbeResult.ErrorKind.
func (p *MetadataProbe) Probe(ctx context.Context, url string) entity.ProbeResult {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	result := entity.ProbeResult{URL: url}

	head, err := p.fetcher.FetchHead(ctx, url)
	if head != nil {
		result.FinalURL = head.FinalURL
	}

	if err != nil {
		result.ErrorKind = common.ClassifyError(err)
		p.metrics.ObserveProbe(string(result.ErrorKind), time.Since(start))
		p.log.Debug("Probe failed", slog.String("url", url), slog.String("kind", string(result.ErrorKind)), slog.Any("error", err))

		return result
	}

	p.fill(&result, head)
	result.OK = true
	p.metrics.ObserveProbe(metrics.ResultOK, time.Since(start))

	return result
}

func (p *MetadataProbe) fill(result *entity.ProbeResult, head *httpadapter.HeadResponse) {
	if cr := head.Header.Get(headerContentRange); cr != "" {
		size, err := parseContentRangeTotal(cr)
		if err != nil {
			p.log.Debug("Skip size", slog.String("url", result.URL), slog.Any("error", err))
		} else if size >= 0 {
			result.SizeBytes = &size
		}
	} else if head.StatusCode != http.StatusPartialContent && head.ContentLength >= 0 {
		size := head.ContentLength
		result.SizeBytes = &size
	}

	if lm := head.Header.Get(headerLastModified); lm != "" {
		t, err := http.ParseTime(lm)
		if err != nil {
			p.log.Debug("Skip last modified", slog.String("url", result.URL),
				slog.Any("error", &common.ContentError{Field: headerLastModified, Value: lm}))
		} else {
			t = t.UTC()
			result.LastModified = &t
		}
	}

	result.ETag = normalizeETag(head.Header.Get(headerETag))
}

// parseContentRangeTotal returns the complete length from "bytes 0-0/12345", or -1 for "*".
func parseContentRangeTotal(value string) (int64, error) {
	_, total, found := strings.Cut(value, "/")
	if !found {
		return 0, &common.ContentError{Field: headerContentRange, Value: value}
	}

	total = strings.TrimSpace(total)
	if total == "*" {
		return -1, nil
	}

	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil || n < 0 {
		return 0, &common.ContentError{Field: headerContentRange, Value: value}
	}

	return n, nil
}

// normalizeETag drops the weak marker and quotes, mirrors disagree on both.
func normalizeETag(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "W/")

	return strings.Trim(value, `"`)
}
