// Package pipeline runs one pass over every configured feed.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jgivc/acstdl/internal/adapter/fsadapter"
	"github.com/jgivc/acstdl/internal/adapter/httpadapter"
	"github.com/jgivc/acstdl/internal/adapter/session"
	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/config"
	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/metrics"
	"github.com/jgivc/acstdl/internal/service/cleanup"
	"github.com/jgivc/acstdl/internal/service/download"
	"github.com/jgivc/acstdl/internal/service/probe"
	"github.com/jgivc/acstdl/internal/service/schedule"
	"github.com/jgivc/acstdl/internal/service/selector"
)

type Storage interface {
	EnsureFolder(folder string) error
	ListMP3(folder string) ([]string, error)
	CreatePart(folder, name string) (io.WriteCloser, error)
	CommitPart(folder, name string) error
	DiscardPart(folder, name string) error
	Remove(folder, name string) error
	Path(folder, name string) string
	WriteLinksReport(folder string, links []string, now time.Time) (string, error)
	FeedDescription(folder string) (*fsadapter.FeedDescription, error)
}

type LinkExtractor interface {
	Extract(content []byte, baseURL string) ([]string, error)
}

type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// Progress is called before and after each feed.
type Progress func(feed string, completed, total int)

type Pipeline struct {
	cfg       *config.Config
	storage   Storage
	extractor LinkExtractor
	tagger    download.Tagger
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewPipeline(cfg *config.Config, storage Storage, extractor LinkExtractor, tagger download.Tagger, m *metrics.Metrics, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		storage:   storage,
		extractor: extractor,
		tagger:    tagger,
		metrics:   m,
		log:       log.With(slog.String("item", "Pipeline")),
	}
}

// run holds the components that live for a single pass. The session cache is never shared between passes.
type run struct {
	state    *entity.RunState
	maxLinks int
	fetcher  PageFetcher
	selector *selector.DeduplicationSelector
	download *download.DownloadOrchestrator
	cleanup  *cleanup.CleanupReconciler
	log      *slog.Logger
}

// Run processes feeds one after another. Feed failures are reported in the summary.
// The error is set only when nothing could run or ctx was cancelled.
func (p *Pipeline) Run(ctx context.Context, sessionID string, progress Progress) (*entity.RunSummary, error) {
	feeds := p.cfg.Feeds()
	if len(feeds) == 0 {
		return nil, common.ErrNoFeedsConfigured
	}

	log := p.log.With(slog.String("session_id", sessionID))
	httpCfg := p.cfg.HTTPConfig()
	selCfg := p.cfg.SelectorConfig()

	sessions := session.NewCache(httpCfg, log)
	defer sessions.Close()

	fetcher := httpadapter.NewFetcher(sessions, httpCfg, log)
	scheduler := schedule.NewDomainScheduler(probe.NewMetadataProbe(fetcher, httpCfg.ProbeTimeout, p.metrics, log), selCfg.MaxConcurrentDomains, log)

	r := &run{
		state:    entity.NewRunState(sessionID),
		maxLinks: selCfg.MaxMP3Links,
		fetcher:  fetcher,
		selector: selector.NewDeduplicationSelector(scheduler, selCfg.Reverse, log),
		download: download.NewDownloadOrchestrator(p.storage, fetcher, p.tagger, p.cfg.DownloadConfig(), p.metrics, log),
		cleanup:  cleanup.NewCleanupReconciler(p.storage, p.metrics, log),
		log:      log,
	}

	summary := &entity.RunSummary{PerFolder: make(map[string]entity.FolderSummary, len(feeds))}

	for i, feed := range feeds {
		if err := ctx.Err(); err != nil {
			log.Warn("Interrupted", slog.Int("feeds_left", len(feeds)-i))

			return summary, err
		}

		if progress != nil {
			progress(feed.Name, i, len(feeds))
		}

		fs := p.runFeed(ctx, r, feed)
		summary.PerFolder[feed.Name] = fs
		summary.Counts.Add(fs.Counts)
		summary.CleanedUp += fs.CleanedUp

		if progress != nil {
			progress(feed.Name, i+1, len(feeds))
		}
	}

	log.Info("Run done", slog.Int("sessions", sessions.Len()), slog.Int("downloaded", summary.Downloaded),
		slog.Int("skipped", summary.SkippedDuplicate), slog.Int("failed", summary.Failed), slog.Int("cleaned_up", summary.CleanedUp))

	return summary, ctx.Err()
}

func (p *Pipeline) runFeed(ctx context.Context, r *run, feed config.FeedURL) entity.FolderSummary {
	log := r.log.With(slog.String("feed", feed.Name), slog.String("url", feed.URL))

	var fs entity.FolderSummary

	desc, err := p.storage.FeedDescription(feed.Name)
	if err != nil {
		log.Warn("Cannot read feed description", slog.Any("error", err))
	}
	if !desc.IsEnabled() {
		log.Info("Feed disabled")
		fs.Error = common.ErrFeedDisabled.Error()

		return fs
	}

	album, maxLinks := feed.Name, r.maxLinks
	if desc != nil {
		fs.Description = desc.HTML
		if desc.Album != "" {
			album = desc.Album
		}
		if desc.MaxMP3Links != nil {
			maxLinks = *desc.MaxMP3Links
		}
	}

	urls, err := p.extract(ctx, r, feed)
	if err != nil {
		log.Error("Cannot get links", slog.Any("error", err))
		fs.Error = err.Error()

		return fs
	}
	fs.LinksFound = len(urls)

	if len(urls) == 0 {
		log.Warn("No links found")
		fs.Error = common.ErrNoLinksFound.Error()

		return fs
	}

	selected := r.selector.Select(ctx, entity.NewLinkRecords(urls), maxLinks)
	fs.Selected = len(selected)

	if !p.cfg.DownloadMP3Files {
		if p.cfg.SaveLinksReport {
			name, err := p.saveLinksReport(feed.Name, selected)
			if err != nil {
				log.Error("Cannot save links report", slog.Any("error", err))
				fs.Error = err.Error()
			}
			fs.LinksReport = name
		}

		return fs
	}

	counts, err := r.download.Download(ctx, r.state, feed.Name, selected, album)
	fs.Counts = counts
	if err != nil {
		log.Error("Cannot download", slog.Any("error", err))
		fs.Error = err.Error()

		return fs
	}

	// An interrupted folder is left as it is, its kept set is incomplete.
	if ctx.Err() != nil {
		return fs
	}

	removed, err := r.cleanup.Reconcile(feed.Name, r.state.Kept(feed.Name))
	fs.CleanedUp = removed
	if err != nil {
		log.Error("Cannot clean up", slog.Any("error", err))
		fs.Error = err.Error()
	}

	return fs
}

func (p *Pipeline) extract(ctx context.Context, r *run, feed config.FeedURL) ([]string, error) {
	content, err := r.fetcher.FetchPage(ctx, feed.URL)
	if err != nil {
		return nil, fmt.Errorf("cannot fetch feed page (%s): %w", common.ClassifyError(err), err)
	}

	urls, err := p.extractor.Extract(content, feed.URL)
	if err != nil {
		return nil, fmt.Errorf("cannot extract links: %w", err)
	}

	return urls, nil
}

func (p *Pipeline) saveLinksReport(folder string, links []entity.LinkRecord) (string, error) {
	if err := p.storage.EnsureFolder(folder); err != nil {
		return "", err
	}

	return p.storage.WriteLinksReport(folder, entity.LinkURLs(links), time.Now())
}
