package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"CareVault/config"
	"CareVault/internal/handler"
	"CareVault/internal/ledger"
	"CareVault/internal/logger"
	"CareVault/internal/metrics"
	"CareVault/internal/mq"
	"CareVault/internal/repo"
	"CareVault/internal/service"
	"CareVault/internal/storage"
	"CareVault/router"
	"CareVault/utils"
)

const multipartMemory = 8 << 20

// main initializes services and starts the HTTP server.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	collector := metrics.NewCollector(cfg.App.Name)

	docs, closeDocs, err := openDocumentStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDocs()

	blobs, err := openBlobStore(ctx, cfg.Blob)
	if err != nil {
		return err
	}

	observe := ledger.WithPersistObserver(func(document string, took time.Duration) {
		collector.LedgerPersistDuration.WithLabelValues(document).Observe(took.Seconds())
	})
	owners := ledger.NewOwnershipLedger(docs, observe)
	shares := ledger.NewShareLedger(docs, observe, ledger.WithShareTTL(cfg.Share.TTL))
	if err := owners.Load(ctx); err != nil {
		return fmt.Errorf("load ownership ledger: %w", err)
	}
	if err := shares.Load(ctx); err != nil {
		return fmt.Errorf("load share ledger: %w", err)
	}
	log.Info("ledgers loaded", zap.String("backend", cfg.Ledger.Backend), zap.Int("share_tokens", shares.Len()))

	deps := service.Deps{
		Owners:  owners,
		Shares:  shares,
		Blobs:   blobs,
		Metrics: collector,
		Log:     log,
		Config: service.RecordsConfig{
			PublicBaseURL:        cfg.HTTP.PublicBaseURL,
			RevokeSharesOnDelete: cfg.Share.RevokeOnDelete,
		},
	}
	if cfg.Audit.Enabled() {
		publisher := mq.NewPublisher(cfg.Audit.RabbitMQURL, mq.TopologyFromConfig(cfg.Audit), log)
		defer publisher.Close()
		deps.Audit = publisher
		log.Info("audit events enabled", zap.String("exchange", cfg.Audit.Exchange))
	}
	if cfg.SMTP.Enabled() {
		mailer, err := utils.NewMailer(cfg.SMTP)
		if err != nil {
			return fmt.Errorf("init mailer: %w", err)
		}
		deps.Mailer = mailer
	}
	svc := service.NewRecordsService(deps)

	sweeperDone := ledger.StartSweeper(ctx, shares, cfg.Share.SweepInterval, log, svc.SweepExpiredShares)

	engine := router.InitRouter(router.Deps{
		Records:            handler.NewRecordsHandler(svc, log),
		Shares:             handler.NewShareHandler(svc, log),
		Verifier:           utils.NewJWTVerifier(cfg.Auth),
		ShareLimiter:       utils.NewIPRateLimiter(cfg.Share.RateLimit, cfg.Share.RateBurst),
		Metrics:            collector,
		Log:                log,
		AllowedOrigins:     cfg.HTTP.AllowedOrigins,
		MaxMultipartMemory: multipartMemory,
		MaxUploadBytes:     cfg.HTTP.MaxUploadBytes,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	stop()
	<-sweeperDone
	svc.Wait()
	return nil
}

func openDocumentStore(ctx context.Context, cfg *config.Config) (repo.DocumentStore, func(), error) {
	if cfg.Ledger.Backend == config.LedgerBackendRedis {
		rdb, err := repo.InitRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewRedisDocumentStore(rdb, cfg.Redis.KeyPrefix), func() { _ = rdb.Close() }, nil
	}
	store, err := repo.NewFileDocumentStore(cfg.Ledger.Dir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func openBlobStore(ctx context.Context, cfg config.BlobConfig) (storage.Store, error) {
	if cfg.Backend == config.BlobBackendMinio {
		store, err := storage.InitMinio(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := storage.NewLocalStore(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return store, nil
}
