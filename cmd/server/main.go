package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/config"
	"github.com/iliyamo/online-cinema/internal/database"
	"github.com/iliyamo/online-cinema/internal/email"
	"github.com/iliyamo/online-cinema/internal/handler"
	"github.com/iliyamo/online-cinema/internal/logger"
	"github.com/iliyamo/online-cinema/internal/middleware"
	"github.com/iliyamo/online-cinema/internal/payment"
	"github.com/iliyamo/online-cinema/internal/queue"
	"github.com/iliyamo/online-cinema/internal/repository"
	"github.com/iliyamo/online-cinema/internal/router"
	"github.com/iliyamo/online-cinema/internal/service"
	"github.com/iliyamo/online-cinema/internal/utils"
)

func main() {
	cfg := config.Load()

	lg, err := logger.New(cfg.IsProd())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	handler.RequestTimeout = cfg.RequestTimeout

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		lg.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		lg.Fatal("migrations failed", zap.Error(err))
	}

	// Redis is optional: without it rate limiting, the catalog cache and
	// the logout blacklist are off.
	rdb := config.NewRedisClient()
	if rdb == nil {
		lg.Warn("redis unavailable; rate limit, cache and token blacklist disabled")
	} else {
		defer rdb.Close()
	}

	store := repository.NewStore(db)
	movies := repository.NewMovieRepo(db)
	blacklist := repository.NewTokenBlacklist(rdb)
	codec := utils.NewTokenCodec(cfg.JWTSecret, cfg.JWTRefresh)
	publisher := queue.NewPublisher(cfg.Queue.URL, lg)

	var mailPub email.Publisher
	if publisher.Enabled() {
		mailPub = publisher
	}
	mailer, err := email.New(cfg.Mail, cfg.Queue.EmailQueue, mailPub, lg)
	if err != nil {
		lg.Fatal("email transport", zap.Error(err))
	}
	gateway := payment.NewStripeGateway(cfg.Payment, cfg.AppURL, lg)

	ledger := service.NewLedger()
	sessions := service.NewSessions(store, ledger, codec, mailer, blacklist, service.SessionConfig{
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		ActivationTTL: cfg.ActivationTTL,
		ResetTTL:      cfg.ResetTTL,
		BcryptCost:    cfg.BcryptCost,
		AppURL:        cfg.AppURL,
	}, lg)
	orders := service.NewOrders(store, lg)
	payments := service.NewPayments(store, gateway, mailer, publisher, service.PaymentsConfig{
		GatewayTimeout: cfg.Payment.GatewayTimeout,
		EventQueue:     cfg.Queue.PaymentQueue,
	}, lg)
	profiles := service.NewProfiles(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var workers sync.WaitGroup
	runWorker := func(fn func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			fn(ctx)
		}()
	}
	runWorker(service.NewTokenSweeper(store, ledger, cfg.SweepInterval, lg).Start)
	if publisher.Enabled() {
		paymentLog := queue.NewPaymentLog(cfg.Queue.PaymentLogDir)
		runWorker(queue.NewConsumer(cfg.Queue.URL, cfg.Queue.PaymentQueue, paymentLog.Handle, lg).Run)
		if cfg.Mail.Transport == "queue" {
			smtp := email.NewSMTPSender(cfg.Mail, logger.Component(lg, "email"))
			runWorker(queue.NewConsumer(cfg.Queue.URL, cfg.Queue.EmailQueue, smtp.HandleQueued, lg).Run)
		}
	}

	e := router.New(lg)
	auth := router.Auth{Codec: codec, Blacklist: blacklist}

	if rdb != nil {
		e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg))
	}
	authLimit := authLimiter(rdb, lg)
	cache := catalogCache(rdb)
	var invalidate func(context.Context) error
	if rdb != nil {
		prefix := config.LoadCacheConfig().Prefix
		invalidate = func(ctx context.Context) error { return middleware.InvalidateCache(ctx, rdb, prefix) }
	}

	catalog := handler.NewCatalogHandler(movies, invalidate)
	paymentHandler := handler.NewPaymentHandler(payments)

	router.RegisterRoutes(e, readiness(db.PingContext, rdb))
	router.RegisterAccounts(e, handler.NewAccountHandler(sessions), handler.NewProfileHandler(profiles), auth, authLimit)
	router.RegisterCatalog(e, catalog, cache)
	router.RegisterCustomer(e, handler.NewOrderHandler(orders, payments), paymentHandler, auth)
	router.RegisterPayments(e, paymentHandler)
	router.RegisterStaff(e, catalog, handler.NewAdminHandler(sessions, orders), paymentHandler, auth)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}
	workers.Wait()
}
