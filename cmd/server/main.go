package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/train-seat-reservation/internal/booking"
	"github.com/iliyamo/train-seat-reservation/internal/config"
	"github.com/iliyamo/train-seat-reservation/internal/handler"
	"github.com/iliyamo/train-seat-reservation/internal/ledger"
	"github.com/iliyamo/train-seat-reservation/internal/metrics"
	"github.com/iliyamo/train-seat-reservation/internal/middleware"
	"github.com/iliyamo/train-seat-reservation/internal/payment"
	"github.com/iliyamo/train-seat-reservation/internal/pricing"
	"github.com/iliyamo/train-seat-reservation/internal/queue"
	"github.com/iliyamo/train-seat-reservation/internal/router"
	"github.com/iliyamo/train-seat-reservation/internal/schedule"
	"github.com/iliyamo/train-seat-reservation/internal/storage"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Env)}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Error("open store failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("store ready", "driver", cfg.StoreDriver)
	if cfg.SeedFile != "" {
		f, err := schedule.Load(cfg.SeedFile)
		if err != nil {
			log.Error("read seed file failed", "file", cfg.SeedFile, "err", err)
			os.Exit(1)
		}
		res, err := schedule.Apply(ctx, st.Inventory, st.Users, f, cfg.BcryptCost)
		if err != nil {
			log.Error("seed failed", "file", cfg.SeedFile, "err", err)
			os.Exit(1)
		}
		log.Info("schedule seeded", "created", res.Created, "skipped", res.Skipped, "admin_created", res.AdminCreated)
	}

	m := metrics.NewCollector()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting, response cache and shared payment intents are off")
	} else {
		defer rdb.Close()
	}

	var (
		escalator ledger.Escalator
		events    booking.Events
		pub       *queue.Publisher
	)
	if cfg.RabbitURL != "" {
		pub = queue.NewPublisher(cfg.RabbitURL, log)
		escalator, events = pub, pub
	} else {
		log.Warn("RABBITMQ_URL not set; booking events and ledger escalation are off")
	}

	l := ledger.New(st.Tickets, ledger.Options{
		Attempts:  cfg.LedgerRetryAttempts,
		Backoff:   cfg.LedgerRetryBackoff,
		Escalator: escalator,
		Metrics:   m,
		Logger:    log,
	})
	coord := booking.NewCoordinator(st.Inventory, l, booking.Options{
		Timeout: cfg.BookingTimeout,
		Events:  events,
		Metrics: m,
		Logger:  log,
	})

	var intents payment.IntentStore = payment.NewMemoryIntents()
	if rdb != nil {
		intents = payment.NewRedisIntents(rdb, "payment:intent")
	}
	gw := payment.NewSSLCommerz(cfg.PaymentStoreID, cfg.PaymentStorePass, cfg.PaymentLive)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e, m.Handler())
	router.RegisterAuth(e, handler.NewAuthHandler(st.Users, cfg.JWTSecret, cfg.AccessTTLMin, cfg.BcryptCost), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewInventoryHandler(st.Inventory, pricing.DefaultRates), middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	ph := &handler.PaymentHandler{
		Inv:           st.Inventory,
		Users:         st.Users,
		Coord:         coord,
		Gateway:       gw,
		Intents:       intents,
		Pricer:        pricing.DefaultRates,
		Metrics:       m,
		Log:           log.With("component", "payment"),
		Currency:      cfg.PaymentCurrency,
		TTL:           cfg.PaymentIntentTTL,
		PublicBaseURL: cfg.PublicBaseURL,
		ClientBaseURL: cfg.ClientBaseURL,
	}
	router.RegisterCustomer(e, ph, handler.NewTicketHandler(l, st.Users, cfg.PublicBaseURL), cfg.JWTSecret)
	router.RegisterGateway(e, ph)
	router.RegisterAdmin(e, handler.NewAdminHandler(l, coord), cfg.JWTSecret)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Info("worker stopped", "worker", name)
		}()
	}
	run("ledger-reconciler", func(ctx context.Context) { l.Run(ctx, cfg.LedgerReconcileInterval) })
	if pub != nil {
		consumers := []*queue.Consumer{
			{URL: cfg.RabbitURL, Queue: queue.BookingConfirmedQueue, Handle: queue.NewBookingLog(cfg.LogDir).Handle, Log: log},
			{URL: cfg.RabbitURL, Queue: queue.TicketReconcileQueue, Prefetch: 10, RetryDelay: cfg.LedgerReconcileInterval, Handle: queue.ReconcileHandler(l.Retry), Log: log},
		}
		for _, c := range consumers {
			run(c.Queue, func(ctx context.Context) { _ = c.Run(ctx) })
		}
	}

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	wg.Wait()
	if n := len(l.Pending()); n > 0 {
		log.Warn("exiting with pending ticket records", "count", n)
	}
	log.Info("shutdown complete")
}

func logLevel(env string) slog.Level {
	if env == "dev" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
