package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"microblog/internal/config"
	"microblog/internal/httpapi"
	"microblog/internal/metrics"
	"microblog/internal/publisher"
	"microblog/internal/render"
	"microblog/internal/scheduler"
	"microblog/internal/service"
	"microblog/internal/source/rss"
	"microblog/internal/storage/memory"
	"microblog/internal/storage/postgres"
)

type stores struct {
	queue     service.QueueStore
	archive   service.ArchiveStore
	state     service.SchedulerStateStore
	digest    service.DigestStateStore
	feeds     service.FeedStore
	txManager service.TransactionManager
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	st, closeStores, err := openStores(cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStores()

	var events service.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	}

	var targets []publisher.Target
	if cfg.Bluesky.Configured() {
		targets = append(targets, publisher.NewBluesky(publisher.BlueskyConfig{
			Service:     cfg.Bluesky.Service,
			Handle:      cfg.Bluesky.Handle,
			AppPassword: cfg.Bluesky.AppPassword,
			Timeout:     cfg.Bluesky.Timeout,
		}, logger))
	} else {
		logger.Warn("bluesky credentials missing, target disabled")
	}
	if cfg.Mastodon.Configured() {
		targets = append(targets, publisher.NewMastodon(publisher.MastodonConfig{
			Server:      cfg.Mastodon.Server,
			AccessToken: cfg.Mastodon.AccessToken,
			Timeout:     cfg.Mastodon.Timeout,
		}))
	} else {
		logger.Warn("mastodon credentials missing, target disabled")
	}

	m := metrics.New()

	renderer := render.New(render.Config{
		ImagesDir:       cfg.Render.ImagesDir,
		MaxImageSize:    cfg.Render.MaxImageSize,
		MetadataTimeout: cfg.Render.MetadataTimeout,
		MetadataRate:    cfg.Render.MetadataRate,
	}, logger)

	postService := service.NewPostService(
		st.queue,
		st.archive,
		st.state,
		st.txManager,
		renderer,
		publisher.NewAdapter(logger, targets...),
		events,
		m,
		logger,
		cfg.Publish,
	)

	feedService := service.NewFeedService(st.feeds, rss.New(rss.Config{
		Timeout:        cfg.RSS.Timeout,
		MaxAttempts:    cfg.RSS.Retry.MaxAttempts,
		InitialBackoff: cfg.RSS.Retry.InitialBackoff,
		MaxBackoff:     cfg.RSS.Retry.MaxBackoff,
	}, logger), logger)

	digestService := service.NewDigestService(st.archive, st.digest, st.txManager, logger, cfg.Digest)

	sched := scheduler.NewScheduler(postService, m, logger, cfg.Scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := sched.Init(ctx); err != nil {
		logger.Error("failed to initialize scheduler", "error", err)
		os.Exit(1)
	}

	if n, err := st.queue.Count(ctx); err == nil {
		m.SetQueueDepth(n)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewServer(postService, sched, feedService, digestService, m.Handler(), logger).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	logger.Info("starting microblog",
		"storage", cfg.Storage.Driver,
		"addr", cfg.HTTP.Addr,
		"interval", cfg.Scheduler.Interval,
		"targets", len(targets),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Start(gctx)
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("microblog stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("microblog stopped")
}

func openStores(cfg *config.Config, logger *slog.Logger) (*stores, func(), error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage, queue and archive are lost on restart")
		return &stores{
			queue:     memory.NewQueueStore(),
			archive:   memory.NewArchiveStore(),
			state:     memory.NewSchedulerStateStore(),
			digest:    memory.NewDigestStateStore(),
			feeds:     memory.NewFeedStore(),
			txManager: memory.TransactionManager{},
		}, func() {}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("connected to database")

	return &stores{
		queue:     postgres.NewQueueStore(db),
		archive:   postgres.NewArchiveStore(db),
		state:     postgres.NewSchedulerStateStore(db),
		digest:    postgres.NewDigestStateStore(db),
		feeds:     postgres.NewFeedStore(db),
		txManager: postgres.NewTransactionManager(db),
	}, func() { db.Close() }, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
