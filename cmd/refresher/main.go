package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"content_refresher/internal/api"
	"content_refresher/internal/auth"
	"content_refresher/internal/config"
	"content_refresher/internal/generation/openrouter"
	"content_refresher/internal/lock"
	"content_refresher/internal/metrics"
	"content_refresher/internal/queue"
	"content_refresher/internal/scheduler"
	"content_refresher/internal/service"
	"content_refresher/internal/storage/memory"
	"content_refresher/internal/storage/postgres"
	"content_refresher/internal/worker"
)

type stores struct {
	documents service.DocumentStore
	logs      service.RefreshLogStore
	txManager service.TransactionManager
	close     func()
}

type jobQueue interface {
	service.JobQueue
	worker.Consumer
	Close() error
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

	if flag.Arg(0) == "token" {
		if err := issueToken(cfg, flag.Args()[1:]); err != nil {
			logger.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("refresher stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("auth.jwt_secret is required: %w", err)
	}

	st, err := openStores(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.close()

	jobs, err := openQueue(cfg, logger)
	if err != nil {
		return err
	}
	defer jobs.Close()

	var locker service.Locker
	if cfg.Redis.Addr != "" {
		client, err := lock.Connect(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		locker = lock.NewRedisLocker(client)
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	} else {
		logger.Warn("redis not configured, concurrent refreshes of a document are not serialized")
	}

	generator := openrouter.New(openrouter.Config{
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		Timeout:     cfg.Generation.Timeout,
		Referer:     cfg.Generation.Referer,
		Title:       cfg.Generation.Title,
	}, logger)
	if cfg.Generation.APIKey == "" {
		logger.Warn("generation.api_key is empty, every refresh will fail")
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	clock := service.SystemClock{}

	refreshService := service.NewRefreshService(
		st.documents,
		st.logs,
		generator,
		st.txManager,
		locker,
		clock,
		logger,
		cfg.Refresh,
	)
	dispatchService := service.NewDispatchService(st.documents, jobs, clock, logger, cfg.Refresh)
	settingsService := service.NewSettingsService(st.documents, clock, logger)

	sched, err := scheduler.NewScheduler(dispatchService, cfg.Refresh.Schedule, logger)
	if err != nil {
		return err
	}

	w := worker.New(jobs, refreshService, cfg.Refresh.JobTimeout, cfg.Refresh.Workers, logger)
	server := api.NewServer(refreshService, settingsService, verifier, prometheus.DefaultGatherer, cfg.HTTP, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("starting content refresher",
		"schedule", cfg.Refresh.Schedule,
		"batch_size", cfg.Refresh.BatchSize,
		"model", cfg.Generation.Model,
		"addr", cfg.HTTP.Addr(),
	)

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	start("scheduler", func() error { return sched.Start(ctx) })
	start("worker", func() error { return w.Run(ctx) })
	start("http", server.Start)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func openStores(cfg config.DatabaseConfig, logger *slog.Logger) (*stores, error) {
	if cfg.Host == "" {
		logger.Warn("database not configured, using in-memory store; data is lost on exit")
		documents := memory.NewDocumentStore()
		if cfg.SeedFile != "" {
			n, err := memory.LoadSeed(context.Background(), documents, cfg.SeedFile, time.Now().UTC())
			if err != nil {
				return nil, fmt.Errorf("load seed documents: %w", err)
			}
			logger.Info("loaded seed documents", "count", n, "path", cfg.SeedFile)
		} else {
			logger.Warn("no database.seed_file set, in-memory store starts empty")
		}
		return &stores{
			documents: documents,
			logs:      memory.NewRefreshLogStore(),
			txManager: memory.NewTransactionManager(),
			close:     func() {},
		}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")

	return &stores{
		documents: postgres.NewDocumentStore(db),
		logs:      postgres.NewRefreshLogStore(db),
		txManager: postgres.NewTransactionManager(db),
		close:     func() { db.Close() },
	}, nil
}

func openQueue(cfg *config.Config, logger *slog.Logger) (jobQueue, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Warn("rabbitmq not configured, using in-process queue")
		return queue.NewLocal(cfg.Refresh.BatchSize*2, logger), nil
	}

	return queue.NewRabbitMQ(queue.Config{
		URL:            cfg.RabbitMQ.URL,
		Exchange:       cfg.RabbitMQ.Exchange,
		RoutingKey:     cfg.RabbitMQ.RoutingKey,
		QueueName:      cfg.RabbitMQ.QueueName,
		DelayQueueName: cfg.RabbitMQ.DelayQueueName,
		Prefetch:       cfg.RabbitMQ.Prefetch,
	}, logger)
}

// issueToken prints a bearer token for the HTTP API signed with the
// configured secret.
func issueToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "", "token subject")
	role := fs.String("role", auth.RoleEditor, "caller role")
	documents := fs.String("documents", "", "comma-separated document ids the caller may edit")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("-sub is required")
	}

	var ids []int64
	for _, raw := range strings.Split(*documents, ",") {
		if raw = strings.TrimSpace(raw); raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("parse document id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	token, err := verifier.Issue(*subject, *role, ids, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
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
