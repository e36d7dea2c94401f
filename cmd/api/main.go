package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/health-insight/internal/application"
	appexams "github.com/bryanwahyu/health-insight/internal/application/exams"
	appinsights "github.com/bryanwahyu/health-insight/internal/application/insights"
	"github.com/bryanwahyu/health-insight/internal/config"
	"github.com/bryanwahyu/health-insight/internal/domain/events"
	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
	"github.com/bryanwahyu/health-insight/internal/domain/uow"
	openaiext "github.com/bryanwahyu/health-insight/internal/infra/ai/openai"
	"github.com/bryanwahyu/health-insight/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/health-insight/internal/infra/db/mysql"
	"github.com/bryanwahyu/health-insight/internal/infra/db/postgres"
	eventsinfra "github.com/bryanwahyu/health-insight/internal/infra/events"
	"github.com/bryanwahyu/health-insight/internal/infra/httpserver"
	"github.com/bryanwahyu/health-insight/internal/infra/storage"
	"github.com/bryanwahyu/health-insight/internal/middleware"
)

type stores struct {
	exams    exams.Repository
	insights insights.Repository
	tx       uow.UnitOfWork
	health   middleware.HealthChecker
	close    func() error
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	files, err := openFileStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, err := openPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	examSvc := &appexams.Service{
		Repo:      st.exams,
		Tx:        st.tx,
		Extractor: newExtractor(cfg),
		Files:     files,
		Events:    publisher,
		Clock:     application.SystemClock{},
		Log:       logger,
	}
	insightSvc := &appinsights.Service{
		Repo:  st.insights,
		Tx:    st.tx,
		Clock: application.SystemClock{},
		Log:   logger,
	}

	handler := httpserver.NewRouter(examSvc, insightSvc, httpserver.Options{
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     middleware.NewRateLimiter(ctx, cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate),
		Metrics:     middleware.NewMetrics(),
		Checkers:    map[string]middleware.HealthChecker{"database": st.health},
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", addr,
			"database", cfg.Database.Driver,
			"storage", cfg.Storage.Driver,
			"ai", cfg.AI.Provider,
			"events", cfg.Events.Driver,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// graceful shutdown
	logger.Info("shutting down server...")
	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx2)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Database.Driver {
	case "mysql":
		if db, err = mysqlp.Connect(ctx, cfg.MySQLDSN()); err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := mysqlp.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		return &stores{
			exams:    mysqlp.NewExamRepository(db),
			insights: mysqlp.NewInsightRepository(db),
			tx:       mysqlp.NewUnitOfWork(db),
			health:   &middleware.DatabaseHealthChecker{DB: db},
			close:    db.Close,
		}, nil

	case "postgres":
		if db, err = postgres.Connect(ctx, cfg.PostgresDSN()); err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
		}
		return &stores{
			exams:    postgres.NewExamRepository(db),
			insights: postgres.NewInsightRepository(db),
			tx:       postgres.NewUnitOfWork(db),
			health:   &middleware.DatabaseHealthChecker{DB: db},
			close:    db.Close,
		}, nil
	}

	mem := memory.NewStore()
	return &stores{
		exams:    mem.Exams(),
		insights: mem.Insights(),
		tx:       mem,
		health:   middleware.CheckFunc(func(context.Context) error { return nil }),
		close:    func() error { return nil },
	}, nil
}

func openFileStore(ctx context.Context, cfg *config.Config) (exams.FileStore, error) {
	switch cfg.Storage.Driver {
	case "minio":
		m := cfg.Storage.Minio
		s, err := storage.NewMinio(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("minio init: %w", err)
		}
		return s, nil
	case "s3":
		s3c := cfg.Storage.S3
		s, err := storage.NewS3(ctx, s3c.Region, s3c.Endpoint, s3c.Bucket)
		if err != nil {
			return nil, fmt.Errorf("s3 init: %w", err)
		}
		return s, nil
	}
	return nil, nil
}

func openPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "kafka":
		return eventsinfra.NewKafkaPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic), nil
	case "sqs":
		q := cfg.Events.SQS
		p, err := eventsinfra.NewSQSPublisher(ctx, q.Region, q.Endpoint, q.QueueName)
		if err != nil {
			return nil, fmt.Errorf("sqs init: %w", err)
		}
		return p, nil
	}
	return nil, nil
}

func newExtractor(cfg *config.Config) exams.MarkerExtractor {
	if cfg.AI.Provider == "openai" {
		return openaiext.NewExtractor(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
	}
	return exams.TemplateExtractor{}
}
