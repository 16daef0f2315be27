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
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/sandbeige/storefront/internal/cache"
	"github.com/sandbeige/storefront/internal/catalog"
	"github.com/sandbeige/storefront/internal/config"
	h "github.com/sandbeige/storefront/internal/http"
	"github.com/sandbeige/storefront/internal/local"
	"github.com/sandbeige/storefront/internal/notify"
	"github.com/sandbeige/storefront/internal/poller"
	"github.com/sandbeige/storefront/internal/reconciler"
	"github.com/sandbeige/storefront/internal/repository"
	"github.com/sandbeige/storefront/internal/service"
	"github.com/sandbeige/storefront/internal/totals"
	"github.com/sandbeige/storefront/pkg/circuitbreaker"
	"github.com/sandbeige/storefront/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: "cart",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	if err := run(cfg, log); err != nil {
		log.Error("cart service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("cart service stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Remote cart rows
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()
	if m, ok := repo.(repository.Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate cart store: %w", err)
		}
	}
	log.Info("connected to cart store", "backend", cfg.RemoteBackend)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", "addr", cfg.RedisAddr)

	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer products.Close()
	if err := products.RunMigrations(); err != nil {
		return err
	}

	breaker := circuitbreaker.New("remote-cart", circuitbreaker.DefaultConfig(), log)
	remote := service.NewRemoteCart(repo, cache.NewRedisCache(redisClient),
		service.WithTimeout(cfg.RemoteTimeout),
		service.WithBreaker(breaker),
		service.WithLogger(log),
	)

	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.KafkaEnabled() {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.CartEventsTopic, log, cfg.KafkaBrokers...)
		defer kafkaNotifier.Close()
		notifiers = append(notifiers, kafkaNotifier)
	}

	taxRate, shippingFee := cfg.Money()
	cartConfig := reconciler.Config{
		Local:    local.NewAdapter(local.NewRedisStore(redisClient, cfg.LocalCartTTL), log),
		Remote:   remote,
		Catalog:  products,
		Notifier: notifiers,
		Receipts: cache.NewMergeReceipts(redisClient),
		Totals:   totals.Config{TaxRate: taxRate, ShippingFee: shippingFee},
		Logger:   log,
	}
	sessions := h.NewSessions(func(ctx context.Context, sessionID string) *reconciler.Reconciler {
		return reconciler.New(ctx, sessionID, cartConfig)
	}, cfg.SessionIdle, log)

	var checkout *poller.Poller
	if cfg.KafkaEnabled() {
		checkout = poller.NewPoller(remote, sessions, notifiers, log, cfg.CheckoutTopic, cfg.KafkaBrokers...)
		defer checkout.Close()
	}

	router := h.NewRouter(h.RouterConfig{
		Carts:          h.NewCartHandler(sessions, cfg.RequestTimeout, log),
		Products:       h.NewProductHandler(products, cfg.RequestTimeout),
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("cart service listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	if checkout != nil {
		g.Go(func() error {
			checkout.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down cart service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openRepository(ctx context.Context, cfg config.Config) (repository.CartRepository, func(), error) {
	switch cfg.RemoteBackend {
	case config.BackendPostgres:
		db, err := repository.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresRepository(db), closeSQL(db), nil
	default:
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewMongoRepository(db), disconnectMongo(db.Client()), nil
	}
}

func closeSQL(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close postgres", "error", err)
		}
	}
}

func disconnectMongo(client *mongo.Client) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			slog.Warn("failed to disconnect mongo", "error", err)
		}
	}
}
