package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	cartcache "github.com/fedotovn/placeorder/internal/cart/cache"
	cartrepo "github.com/fedotovn/placeorder/internal/cart/repository"
	cartservice "github.com/fedotovn/placeorder/internal/cart/service"
	catalogrepo "github.com/fedotovn/placeorder/internal/catalog/repository"
	"github.com/fedotovn/placeorder/internal/database"
	apihttp "github.com/fedotovn/placeorder/internal/http"
	"github.com/fedotovn/placeorder/internal/idempotency"
	orderrepo "github.com/fedotovn/placeorder/internal/order/repository"
	orderservice "github.com/fedotovn/placeorder/internal/order/service"
	"github.com/fedotovn/placeorder/internal/outbox"
)

type Config struct {
	HTTPPort       string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	Currency       string        `envconfig:"CURRENCY" default:"USD"`

	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName         string `envconfig:"DB_NAME" default:"placeorder"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./migrations"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	KafkaBrokers    string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	OrderEventTopic string `envconfig:"ORDER_EVENT_TOPIC" default:"order-events"`

	IdempotencyRetention time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"300s"`
}

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	creds := &database.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}

	db, err := database.Open(creds)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(db, creds); err != nil {
		logrus.WithError(err).Fatal("failed to run migrations")
	}
	logrus.Info("database migrations completed")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logrus.WithError(err).Fatal("failed to connect to redis")
	}

	cartCache := cartcache.NewRedisCache(redisClient)
	cartRepository := cartrepo.NewPostgresRepository(db)
	catalog := catalogrepo.NewPostgresRepository(db)
	ledger := idempotency.NewPostgresLedger(db, cfg.IdempotencyRetention)
	orderRepository := orderrepo.NewPostgresRepository(db, ledger)

	cartSvc := cartservice.NewCartService(cartRepository, cartCache, catalog, cfg.Currency)
	orderSvc := orderservice.NewOrderService(cartRepository, catalog, ledger, orderRepository, cartCache)

	writer := outbox.NewKafkaWriter(cfg.OrderEventTopic, strings.Split(cfg.KafkaBrokers, ",")...)
	defer writer.Close()
	publisher := outbox.NewPublisher(orderRepository, writer)

	var wg sync.WaitGroup
	publisherCtx, publisherCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.Run(publisherCtx)
	}()

	cartHandler := apihttp.NewCartHandler(cartSvc, cfg.RequestTimeout)
	ordersHandler := apihttp.NewOrdersHandler(orderSvc, cfg.RequestTimeout)
	router := apihttp.NewRouter(cartHandler, ordersHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		logrus.WithField("port", cfg.HTTPPort).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("http server shutdown failed")
	}

	publisherCancel()
	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		logrus.Info("outbox publisher stopped cleanly")
	case <-shutdownCtx.Done():
		logrus.Warn("outbox publisher didn't stop in time")
	}

	logrus.Info("server stopped")
}
