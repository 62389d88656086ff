package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-marketplace/internal/aggregates"
	"ms-marketplace/internal/api"
	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/bundle"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database/migrations"
	"ms-marketplace/internal/kafka"
	"ms-marketplace/internal/listing"
	listingdb "ms-marketplace/internal/listing/db"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/monitoring"
	"ms-marketplace/internal/notification"
	"ms-marketplace/internal/order"
	orderdb "ms-marketplace/internal/order/db"
	orderredis "ms-marketplace/internal/order/redis"
	"ms-marketplace/internal/payment"
	"ms-marketplace/internal/settlement"
	settlementdb "ms-marketplace/internal/settlement/db"
)

func main() {
	cfg := config.Load()
	log := logger.New()
	defer log.Close()

	// --- Postgres ---
	sqldb, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("STARTUP", fmt.Sprintf("open postgres: %v", err))
	}
	defer sqldb.Close()
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("STARTUP", fmt.Sprintf("connect to postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, cfg.Database.MigrationsDir, log)
	if err := runner.Up(); err != nil {
		log.Fatal("STARTUP", fmt.Sprintf("migrations: %v", err))
	}
	defer runner.Close()

	// --- Redis ---
	ctx := context.Background()
	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("STARTUP", fmt.Sprintf("connect to redis: %v", err))
	}
	defer redisClient.Close()

	// --- Kafka ---
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ListingsTopic,
		cfg.Kafka.OrdersTopic, log, cfg.Kafka.MockMode || !cfg.Kafka.Enabled)
	defer producer.Close()

	// --- Mail ---
	var notify notification.Sender = notification.Noop{}
	if cfg.Email.SMTPUsername != "" {
		smtpPort, err := strconv.Atoi(cfg.Email.SMTPPort)
		if err != nil {
			log.Fatal("STARTUP", fmt.Sprintf("invalid SMTP port %q: %v", cfg.Email.SMTPPort, err))
		}
		notify = &notification.EmailSender{
			Host:     cfg.Email.SMTPHost,
			Port:     smtpPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.From,
		}
	} else {
		log.Warn("STARTUP", "SMTP not configured, notifications disabled")
	}

	// --- Payment gateway ---
	gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.ReturnURL,
		cfg.Stripe.Timeout, log)
	if err != nil {
		log.Fatal("STARTUP", fmt.Sprintf("stripe: %v", err))
	}

	// --- Services ---
	listingStore := &listingdb.DB{Bun: bunDB, Aggregates: aggregates.Maintainer{}}
	listingSvc := &listing.Service{
		DB:         listingStore,
		Log:        log,
		Notify:     notify,
		Kafka:      producer,
		AdminEmail: cfg.Email.AdminAddress,
	}

	orderStore := &orderdb.DB{Bun: bunDB, Aggregates: aggregates.Maintainer{}}
	saleStore := &settlementdb.DB{Bun: bunDB}
	ledger := &settlement.Ledger{
		Store:  saleStore,
		Orders: orderStore,
		Notify: notify,
		Log:    log,
	}

	orderSvc := &order.Service{
		DB:       orderStore,
		Catalog:  listingStore,
		Bundles:  &bundle.Resolver{Store: listingStore},
		Splitter: listingSvc,
		Locks:    orderredis.NewLocks(redisClient, cfg.Locks.TTL, log),
		Gateway:  gateway,
		Notify:   notify,
		Kafka:    producer,
		Log:      log,
		Currency: cfg.Stripe.Currency,

		AdminEmail: cfg.Email.AdminAddress,
	}

	handler := &api.Handler{
		Listings:     listingSvc,
		ListingStore: listingStore,
		Orders:       orderSvc,
		OrderStore:   orderStore,
		Ledger:       ledger,
		Log:          log,
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", monitoring.Handler())

	if cfg.Auth.Disabled {
		log.Warn("STARTUP", "auth middleware disabled")
		r.Mount("/api/v1", handler.Routes())
	} else {
		verify, err := auth.Middleware(cfg.Auth.OIDCIssuer)
		if err != nil {
			log.Fatal("STARTUP", fmt.Sprintf("auth: %v", err))
		}
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(verify)
			r.Mount("/", handler.Routes())
		})
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("STARTUP", "marketplace listening on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SHUTDOWN", "signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("SHUTDOWN", fmt.Sprintf("server shutdown: %v", err))
	}
	log.Info("SHUTDOWN", "bye")
}
