package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/api"
	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/database"
	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/downloader/qbittorrent"
	"github.com/fetcharr/fetcharr/internal/downloader/sabnzbd"
	"github.com/fetcharr/fetcharr/internal/history"
	"github.com/fetcharr/fetcharr/internal/logger"
	"github.com/fetcharr/fetcharr/internal/provider"
	"github.com/fetcharr/fetcharr/internal/provider/defs"
	"github.com/fetcharr/fetcharr/internal/provider/htmlscrape"
	"github.com/fetcharr/fetcharr/internal/provider/status"
	"github.com/fetcharr/fetcharr/internal/provider/types"
	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/scheduler"
	"github.com/fetcharr/fetcharr/internal/search"
	"github.com/fetcharr/fetcharr/internal/show"
	"github.com/fetcharr/fetcharr/internal/snatch"
	"github.com/fetcharr/fetcharr/internal/tvcache"
	"github.com/fetcharr/fetcharr/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().Str("logLevel", cfg.Logging.Level).Msg("starting fetcharr")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	hub := websocket.NewHub()
	go hub.Run()

	registry := show.NewRegistry(db.Conn(), log.Logger)
	if err := registry.Load(ctx); err != nil {
		return err
	}

	parser := release.NewNameParser(registry)
	filter := &release.WordFilter{}
	statusStore := status.NewStore(db.Conn())

	providers, err := buildProviders(ctx, cfg, db, registry, parser, filter, statusStore, hub, log.Logger)
	if err != nil {
		return err
	}
	log.Info().Int("providers", len(providers)).Msg("providers loaded")

	historyStore := history.NewStore(db.Conn(), log.Logger)
	clients := buildClients(cfg)
	snatcher := snatch.NewService(clients, registry, historyStore, hub, log.Logger)

	searcher := search.NewSearcher(providers, snatcher, cfg.Search.CPUPreset, log.Logger)

	queue := search.NewQueue(hub, log.Logger)
	queue.Start(ctx)

	state := search.NewStateStore(db.Conn())
	backlog := search.NewBacklog(queue, searcher, registry, state,
		cfg.Search.BacklogFrequencyMinutes, cfg.Search.BacklogDays, log.Logger)
	daily := search.NewDaily(queue, searcher, registry, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}
	if err := registerTasks(sched, cfg, daily, backlog, providers); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	server := api.NewServer(api.Dependencies{
		Config:    cfg,
		Hub:       hub,
		Registry:  registry,
		Queue:     queue,
		Searcher:  searcher,
		Providers: providers,
		Status:    statusStore,
		Backlog:   backlog,
		History:   historyStore,
		Scheduler: sched,
	}, log.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Address())
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	queue.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// buildProviders assembles the cache store, updater and matcher for every
// definition found in the definitions directory.
func buildProviders(ctx context.Context, cfg *config.Config, db *database.DB, registry *show.Registry, parser release.Parser, filter *release.WordFilter, statusStore *status.Store, hub *websocket.Hub, log zerolog.Logger) ([]*search.Provider, error) {
	definitions, err := defs.LoadDir(cfg.Providers.DefinitionsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn().Str("dir", cfg.Providers.DefinitionsDir).Msg("definitions directory missing, no providers loaded")
			return nil, nil
		}
		return nil, err
	}

	trim := tvcache.TrimConfig{Enabled: cfg.Cache.Trimming, MaxAge: cfg.Cache.MaxAgeDays}

	providers := make([]*search.Provider, 0, len(definitions))
	for _, def := range definitions {
		store, err := tvcache.NewStore(ctx, db.Conn(), def.ID, log)
		if err != nil {
			return nil, err
		}

		var decoder provider.Decoder
		if def.ResultFormat == "html" {
			decoder = htmlscrape.New(htmlscrape.DefaultSelectors())
		} else {
			decoder = &provider.RSSDecoder{Protocol: types.Protocol(def.Protocol)}
		}

		adapter := provider.NewGeneric(def, decoder, log)
		updater := tvcache.NewUpdater(store, adapter, parser, statusStore, trim, hub, log)
		matcher := tvcache.NewMatcher(store, def, registry, filter, statusStore, log)

		providers = append(providers, &search.Provider{
			Def:     def,
			Store:   store,
			Updater: updater,
			Matcher: matcher,
		})
	}
	return providers, nil
}

// buildClients constructs the configured download clients keyed by protocol.
func buildClients(cfg *config.Config) map[downloader.Protocol]downloader.Client {
	clients := make(map[downloader.Protocol]downloader.Client)

	if c := cfg.Clients.SABnzbd; c.Enabled {
		clients[downloader.ProtocolUsenet] = sabnzbd.New(downloader.ClientConfig{
			Host:     c.Host,
			Port:     c.Port,
			UseSSL:   c.UseSSL,
			APIKey:   c.APIKey,
			Category: c.Category,
		})
	}
	if c := cfg.Clients.QBittorrent; c.Enabled {
		clients[downloader.ProtocolTorrent] = qbittorrent.New(downloader.ClientConfig{
			Host:     c.Host,
			Port:     c.Port,
			Username: c.Username,
			Password: c.Password,
			UseSSL:   c.UseSSL,
			Category: c.Category,
		})
	}
	return clients
}

func registerTasks(sched *scheduler.Scheduler, cfg *config.Config, daily *search.Daily, backlog *search.Backlog, providers []*search.Provider) error {
	// Non-forced refreshes respect each provider's min_time throttle, so the
	// task interval only bounds how often the throttle is consulted.
	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "cache-refresh",
		Name:        "Cache Refresh",
		Description: "Poll provider feeds into the result caches",
		Interval:    10 * time.Minute,
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			for _, p := range providers {
				if !p.Def.Enabled {
					continue
				}
				if err := p.Updater.Refresh(ctx, false); err != nil && ctx.Err() != nil {
					return err
				}
			}
			return nil
		},
	}); err != nil {
		return err
	}

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "daily-search",
		Name:        "Daily Search",
		Description: "Promote aired episodes to wanted and search for them",
		Interval:    time.Duration(cfg.Search.DailyFrequencyMinutes) * time.Minute,
		Func:        daily.Run,
		RunOnStart:  true,
	}); err != nil {
		return err
	}

	// The task fires daily; Backlog.Run decides whether the pass is limited
	// or full based on the persisted last full-pass day.
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "backlog-search",
		Name:        "Backlog Search",
		Description: "Search for wanted back-catalog episodes",
		Interval:    24 * time.Hour,
		Func: func(ctx context.Context) error {
			return backlog.Run(ctx, false)
		},
	})
}
