// Package download fetches selected links into a feed folder, skipping content already on disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/config"
	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/metrics"
	"github.com/jgivc/acstdl/internal/util"
)

const fileExt = ".mp3"

type Storage interface {
	EnsureFolder(folder string) error
	ListMP3(folder string) ([]string, error)
	CreatePart(folder, name string) (io.WriteCloser, error)
	CommitPart(folder, name string) error
	DiscardPart(folder, name string) error
	Path(folder, name string) string
}

type Fetcher interface {
	FetchBody(ctx context.Context, url string, w io.Writer) (int64, error)
}

type Tagger interface {
	Apply(path string, tags entity.Tags) error
}

// folderState serializes the duplicate scan and reservations of one folder.
type folderState struct {
	mu       sync.Mutex
	inFlight map[string]string // content hash -> reserved file name
}

type DownloadOrchestrator struct {
	storage Storage
	fetcher Fetcher
	tagger  Tagger
	cfg     *config.DownloadConfig
	metrics *metrics.Metrics
	clock   *Clock
	now     func() time.Time

	mu      sync.Mutex
	folders map[string]*folderState

	log *slog.Logger
}

func NewDownloadOrchestrator(storage Storage, fetcher Fetcher, tagger Tagger, cfg *config.DownloadConfig, m *metrics.Metrics, log *slog.Logger) *DownloadOrchestrator {
	return &DownloadOrchestrator{
		storage: storage,
		fetcher: fetcher,
		tagger:  tagger,
		cfg:     cfg,
		metrics: m,
		clock:   NewClock(time.Now),
		now:     time.Now,
		folders: make(map[string]*folderState),
		log:     log.With(slog.String("item", "DownloadOrchestrator")),
	}
}

// Download processes links of one folder with at most cfg.Workers transfers at a time.
// Per link failures are counted, only a folder that cannot be created fails the call.
func (o *DownloadOrchestrator) Download(ctx context.Context, state *entity.RunState, folder string, links []entity.LinkRecord, album string) (entity.Counts, error) {
	if err := o.storage.EnsureFolder(folder); err != nil {
		return entity.Counts{}, fmt.Errorf("cannot prepare folder %s: %w", folder, err)
	}

	log := o.log.With(slog.String("folder", folder), slog.String("session_id", state.SessionID))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts entity.Counts
	)

	sem := semaphore.NewWeighted(int64(max(1, o.cfg.Workers)))
	for i, link := range links {
		candidate := entity.CandidateFile{
			SourceURL:   link.URL,
			ContentHash: util.ContentHash(link.URL),
			TrackIndex:  i + 1,
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn("Interrupted", slog.Int("left", len(links)-i), slog.Any("error", err))

			mu.Lock()
			counts.Failed += len(links) - i
			mu.Unlock()

			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			c := o.process(ctx, log, state, folder, candidate, album)

			mu.Lock()
			counts.Add(c)
			mu.Unlock()
		}()
	}
	wg.Wait()

	log.Info("Folder done", slog.Int("downloaded", counts.Downloaded), slog.Int("skipped", counts.SkippedDuplicate), slog.Int("failed", counts.Failed))

	return counts, nil
}

func (o *DownloadOrchestrator) process(ctx context.Context, log *slog.Logger, state *entity.RunState, folder string, candidate entity.CandidateFile, album string) entity.Counts {
	log = log.With(slog.String("url", candidate.SourceURL), slog.String("hash", candidate.ContentHash))

	existing, err := o.reserve(folder, &candidate)
	if err != nil {
		log.Error("Cannot scan folder", slog.Any("error", err))
		o.metrics.ObserveDownload(metrics.ResultFailed, 0)

		return entity.Counts{Failed: 1}
	}

	if existing != "" {
		log.Debug("Already on disk", slog.String("file", existing))
		state.Keep(folder, existing)
		o.metrics.ObserveDownload(metrics.ResultSkipped, 0)

		return entity.Counts{SkippedDuplicate: 1}
	}
	defer o.release(folder, candidate.ContentHash)

	size, err := o.fetch(ctx, folder, candidate)
	if err != nil {
		result := metrics.ResultFailed
		if errors.Is(err, context.Canceled) {
			result = metrics.ResultCancelled
		}
		log.Error("Cannot download", slog.String("kind", string(common.ClassifyError(err))), slog.Any("error", err))
		o.metrics.ObserveDownload(result, 0)

		return entity.Counts{Failed: 1}
	}

	state.Keep(folder, candidate.GeneratedFilename)
	o.metrics.ObserveDownload(metrics.ResultOK, size)
	log.Info("Downloaded", slog.String("file", candidate.GeneratedFilename), slog.Int64("size", size))

	o.tag(log, folder, candidate, album)

	return entity.Counts{Downloaded: 1}
}

// reserve returns the name of a file that already carries the content hash, or reserves a new name.
func (o *DownloadOrchestrator) reserve(folder string, candidate *entity.CandidateFile) (string, error) {
	fs := o.folderState(folder)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if name, exists := fs.inFlight[candidate.ContentHash]; exists {
		return name, nil
	}

	names, err := o.storage.ListMP3(folder)
	if err != nil {
		return "", err
	}

	// Only the trailing hash counts, a plain substring could hit the timestamp of a generated name.
	suffix := "_" + candidate.ContentHash + fileExt
	for _, name := range names {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			return name, nil
		}
	}

	candidate.GeneratedFilename = FileName(o.clock.Next(), candidate.SourceURL, candidate.ContentHash)
	fs.inFlight[candidate.ContentHash] = candidate.GeneratedFilename

	return "", nil
}

func (o *DownloadOrchestrator) release(folder, hash string) {
	fs := o.folderState(folder)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.inFlight, hash)
}

func (o *DownloadOrchestrator) folderState(folder string) *folderState {
	o.mu.Lock()
	defer o.mu.Unlock()

	fs, exists := o.folders[folder]
	if !exists {
		fs = &folderState{inFlight: make(map[string]string)}
		o.folders[folder] = fs
	}

	return fs
}

func (o *DownloadOrchestrator) fetch(ctx context.Context, folder string, candidate entity.CandidateFile) (int64, error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	w, err := o.storage.CreatePart(folder, candidate.GeneratedFilename)
	if err != nil {
		return 0, err
	}

	size, err := o.fetcher.FetchBody(ctx, candidate.SourceURL, w)
	if closeErr := w.Close(); err == nil && closeErr != nil {
		err = common.NewFilesystemError("close file", candidate.GeneratedFilename, closeErr)
	}

	if err == nil {
		err = o.storage.CommitPart(folder, candidate.GeneratedFilename)
	}

	if err != nil {
		if discardErr := o.storage.DiscardPart(folder, candidate.GeneratedFilename); discardErr != nil {
			o.log.Warn("Cannot remove partial file", slog.String("file", candidate.GeneratedFilename), slog.Any("error", discardErr))
		}

		return 0, err
	}

	return size, nil
}

// tag failures never fail the download.
func (o *DownloadOrchestrator) tag(log *slog.Logger, folder string, candidate entity.CandidateFile, album string) {
	if o.tagger == nil || !o.cfg.Tagging.Enabled {
		return
	}

	var tags entity.Tags
	if o.cfg.Tagging.Album {
		tags.Album = album
	}
	if o.cfg.Tagging.Track {
		tags.Track = candidate.TrackIndex
	}
	if o.cfg.Tagging.ReleaseDate && o.cfg.Tagging.DateFormat != "" {
		tags.ReleaseDate = o.now().Format(o.cfg.Tagging.DateFormat)
	}

	if err := o.tagger.Apply(o.storage.Path(folder, candidate.GeneratedFilename), tags); err != nil {
		log.Warn("Cannot tag file", slog.String("file", candidate.GeneratedFilename), slog.Any("error", err))
	}
}

// FileName builds <unixMicro>_<basename>_<hash>.mp3.
func FileName(micro int64, rawURL, hash string) string {
	var urlPath string
	if u, err := url.Parse(rawURL); err == nil {
		urlPath = u.Path
	}

	return fmt.Sprintf("%d_%s_%s%s", micro, util.BaseName(urlPath), hash, fileExt)
}

// Clock hands out strictly increasing unix microsecond timestamps.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewClock(now func() time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UnixMicro()
	if t <= c.last {
		t = c.last + 1
	}
	c.last = t

	return t
}
