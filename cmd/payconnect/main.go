package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"payconnect/cmd/payconnect/config"
	"payconnect/internal/payconnect"
	"payconnect/internal/payconnect/bulkclix"
	"payconnect/internal/payconnect/data/airtable"
	"payconnect/internal/payconnect/data/database"
	"payconnect/internal/payconnect/data/dbrepository"
	"payconnect/internal/payconnect/hubtel"
	"payconnect/internal/payconnect/ordersmonitor"
	"payconnect/internal/payconnect/service"
	"payconnect/pkg/logging"
	"payconnect/pkg/pgxstorage"
	"payconnect/pkg/redislock"
	"payconnect/pkg/threadsafe"
)

type orderStore interface {
	service.OrderRepository
	ordersmonitor.OrdersRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	rootCtx, cancelCtx := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGABRT,
	)
	defer cancelCtx()

	var (
		store        orderStore
		transactions service.TransactionManager = service.NoTransactions{}
	)
	if cfg.UsePostgres() {
		storage, err := pgxstorage.New(database.NewPgxDatabaseFactory(cfg.DB))
		if err != nil {
			log.Fatal(err)
		}
		defer storage.Close()
		store = dbrepository.New(storage, logger)
		transactions = pgxstorage.NewTransactionsManager(storage)
		logger.InfoCtx(rootCtx, "orders are stored in PostgreSQL")
	} else {
		store = airtable.New(cfg.Airtable, logger)
		logger.InfoCtx(rootCtx, "orders are stored in Airtable", zap.String("table", cfg.Airtable.Table))
	}

	var locker service.Locker = threadsafe.NewKeyedMutex()
	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer func() {
			_ = client.Close()
		}()
		if err := client.Ping(rootCtx).Err(); err != nil {
			log.Fatal(fmt.Errorf("failed to reach redis: %w", err))
		}
		locker = redislock.New(client, redislock.Config{Logger: logger})
		logger.InfoCtx(rootCtx, "order locks are shared through redis", zap.String("addr", cfg.RedisAddress))
	}

	provider := bulkclix.New(cfg.BulkClix, logger)
	sms := hubtel.New(cfg.Hubtel, logger)

	checkout := service.NewCheckout(cfg.Checkout, store, provider, locker, logger)
	reconciler := service.NewReconciler(cfg.Reconciler, store, sms, locker, transactions, logger)

	var monitor *ordersmonitor.OrdersMonitor
	if cfg.Monitor.TickPeriod > 0 {
		monitor = ordersmonitor.NewOrdersMonitor(cfg.Monitor, store, provider, reconciler, logger)
	}

	server := payconnect.NewServer(cfg.Server, checkout, reconciler, provider, logger)

	logger.InfoCtx(
		rootCtx,
		"starting payconnect",
		zap.String("address", cfg.Server.ServerAddress),
		zap.String("merchant", cfg.Merchant),
		zap.Bool("applyTerminalStatus", cfg.Reconciler.ApplyTerminalStatus),
	)
	if err := run(rootCtx, cfg, server, monitor, logger); err != nil {
		logger.ErrorCtx(rootCtx, "Server shutdown with error", zap.Error(err))
	} else {
		logger.InfoCtx(rootCtx, "Server shutdown gracefully")
	}
}

func run(
	rootCtx context.Context,
	cfg *config.Config,
	server *payconnect.Server,
	monitor *ordersmonitor.OrdersMonitor,
	logger *logging.ZapLogger,
) error {
	g, ctx := errgroup.WithContext(rootCtx)

	context.AfterFunc(ctx, func() {
		ctx, cancelCtx := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelCtx()

		<-ctx.Done()
		log.Fatal("failed to gracefully shutdown the server")
	})

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if monitor != nil {
		g.Go(func() error {
			monitor.Run()
			return nil
		})
	}

	g.Go(func() error {
		defer logger.InfoCtx(ctx, "Shutting down server")
		<-ctx.Done()
		if monitor != nil {
			monitor.Stop()
		}
		if err := server.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("goroutine error occured: %w", err)
	}

	return nil
}
