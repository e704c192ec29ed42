package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jgivc/acstdl/internal/adapter/fsadapter"
	"github.com/jgivc/acstdl/internal/adapter/htmladapter"
	"github.com/jgivc/acstdl/internal/adapter/id3adapter"
	"github.com/jgivc/acstdl/internal/common"
	"github.com/jgivc/acstdl/internal/config"
	"github.com/jgivc/acstdl/internal/entity"
	httphandler "github.com/jgivc/acstdl/internal/handler/http"
	"github.com/jgivc/acstdl/internal/metrics"
	runrepo "github.com/jgivc/acstdl/internal/repository/run"
	"github.com/jgivc/acstdl/internal/service/download"
	"github.com/jgivc/acstdl/internal/service/pipeline"
	srvrun "github.com/jgivc/acstdl/internal/service/run"
)

const (
	redisTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	rdb     *redis.Client
	runs    *srvrun.RunService
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

// Init loads the config and wires every component. It panics on a broken setup.
func (a *App) Init() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repo, err := a.newRunRepository(log)
	if err != nil {
		panic(err)
	}

	fsa, err := fsadapter.NewFSAdapter(a.cfg.FSAdapterConfig(), log)
	if err != nil {
		panic(err)
	}

	var tagger download.Tagger
	if a.cfg.Tagging.Enabled {
		tagger = id3adapter.NewTagger(log)
	}

	p := pipeline.NewPipeline(a.cfg, fsa, htmladapter.NewLinkExtractor(), tagger, m, log)
	a.runs = srvrun.NewRunService(p, repo, m, log)

	a.srv = &http.Server{
		Addr:    a.cfg.Listen,
		Handler: httphandler.NewRouter(a.runs, reg, log),
	}
}

func (a *App) newRunRepository(log *slog.Logger) (srvrun.RunRepository, error) {
	if a.cfg.RedisURL == "" {
		log.Info("Redis is not configured, run status is kept in memory")

		return runrepo.NewMemoryRepository(a.cfg.RunTTLDuration()), nil
	}

	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}
	a.rdb = rdb

	return runrepo.NewRunRepository(rdb, a.cfg.RunTTLDuration(), log), nil
}

func (a *App) Serve() {
	go func() {
		a.log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

// Run starts a background run, used on SIGUSR1.
func (a *App) Run() {
	id, err := a.runs.Start(context.Background())
	if err != nil {
		if errors.Is(err, common.ErrRunAlreadyStarted) {
			a.log.Warn("Run is in progress, skip")

			return
		}

		a.log.Error("Cannot start run", slog.Any("error", err))

		return
	}

	a.log.Info("Run started", slog.String("id", id))
}

// RunOnce runs in the foreground and prints the summary. It returns false when the run failed.
func (a *App) RunOnce(ctx context.Context) bool {
	fmt.Println("Running...")

	session, err := a.runs.RunOnce(ctx)
	if err != nil {
		fmt.Printf("Cannot run: %s\n", err)

		return false
	}

	printSummary(session)

	return session.Status == entity.RunStatusCompleted
}

func printSummary(session *entity.RunSession) {
	if session.Summary != nil {
		names := make([]string, 0, len(session.Summary.PerFolder))
		for name := range session.Summary.PerFolder {
			names = append(names, name)
		}
		sort.Strings(names)

		for i, name := range names {
			fs := session.Summary.PerFolder[name]
			fmt.Printf("%d. %s: links %d, selected %d, downloaded %d, skipped %d, failed %d, cleaned up %d\n",
				i+1, name, fs.LinksFound, fs.Selected, fs.Downloaded, fs.SkippedDuplicate, fs.Failed, fs.CleanedUp)
			if fs.LinksReport != "" {
				fmt.Printf("   links saved to %s\n", fs.LinksReport)
			}
			if fs.Error != "" {
				fmt.Printf("   error: %s\n", fs.Error)
			}
		}

		s := session.Summary
		fmt.Printf("Total: downloaded %d, skipped %d, failed %d, cleaned up %d\n", s.Downloaded, s.SkippedDuplicate, s.Failed, s.CleanedUp)
	}

	if session.Error != "" {
		fmt.Printf("Run %s: %s\n", session.Status, session.Error)

		return
	}

	fmt.Println("Done.")
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.srv.Shutdown(ctx); err != nil {
		a.log.Error("Cannot shutdown server", slog.Any("error", err))
	}

	a.runs.Stop()

	if a.rdb != nil {
		a.rdb.Close()
	}
}
