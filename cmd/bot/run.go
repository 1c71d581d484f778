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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/bank-notify-bot/internal/bankdata"
	"github.com/kitbuilder587/bank-notify-bot/internal/config"
	"github.com/kitbuilder587/bank-notify-bot/internal/metrics"
	"github.com/kitbuilder587/bank-notify-bot/internal/poller"
	"github.com/kitbuilder587/bank-notify-bot/internal/ratelimit"
	"github.com/kitbuilder587/bank-notify-bot/internal/repository/postgres"
	"github.com/kitbuilder587/bank-notify-bot/internal/service"
	"github.com/kitbuilder587/bank-notify-bot/internal/telegram"
	"github.com/kitbuilder587/bank-notify-bot/internal/txformat"
)

func runBot(parent context.Context, envFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", zap.Error(err))
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("failed to apply schema", zap.Error(err))
		return err
	}
	users := postgres.NewUserRepo(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens := bankdata.NewTokenManager(bankdata.TokenConfig{
		SecretID:  cfg.Bank.SecretID,
		SecretKey: cfg.Bank.SecretKey,
		BaseURL:   cfg.Bank.BaseURL,
		Timeout:   cfg.Bank.Timeout,
	}, logger, m)
	bank := bankdata.New(ctx, bankdata.Config{
		BaseURL:  cfg.Bank.BaseURL,
		Timeout:  cfg.Bank.Timeout,
		CacheTTL: cfg.Cache.TTL,
	}, tokens, logger, m)
	defer bank.Close()

	rules := txformat.DefaultRules()
	if cfg.CategoryRulesFile != "" {
		rules, err = txformat.LoadRules(cfg.CategoryRulesFile)
		if err != nil {
			logger.Error("failed to load category rules", zap.String("path", cfg.CategoryRulesFile), zap.Error(err))
			return err
		}
	}
	formatter := txformat.New(rules, cfg.Bank.Currency)

	userService := service.NewUserService(users, bank, bank, service.LinkConfig{
		Country:         cfg.Bank.Country,
		InstitutionName: cfg.Bank.InstitutionName,
		RedirectURL:     cfg.Bank.RedirectURL,
	}, logger)
	accountService := service.NewAccountService(users, bank, formatter, txformat.DefaultLimit, logger)

	limiter := ratelimit.New(ctx, ratelimit.Config{RequestsPerMinute: cfg.RateLimit.RequestsPerMinute})

	bot, err := telegram.New(telegram.BotConfig{
		Token:    cfg.Telegram.Token,
		Debug:    cfg.Telegram.Debug,
		BankName: bankName(cfg.Bank.InstitutionName),
		Currency: cfg.Bank.Currency,
	}, userService, accountService, limiter, logger, m)
	if err != nil {
		logger.Error("failed to create telegram bot", zap.Error(err))
		return err
	}
	bot.SetBroadcast(service.NewBroadcastService(users, bot, cfg.Telegram.AdminID, logger))

	p := poller.New(poller.Config{
		IntervalMin: cfg.Poll.IntervalMin,
		IntervalMax: cfg.Poll.IntervalMax,
		MaxRetries:  cfg.Poll.MaxRetries,
		RetryDelay:  cfg.Poll.RetryDelay,
		Concurrency: int64(cfg.Poll.Concurrency),
	}, users, accountService, bot, logger, m)
	defer p.Stop()
	bot.SetNotifications(p)

	resumed, err := p.Reconcile(ctx)
	if err != nil {
		logger.Error("failed to resume notifications", zap.Error(err))
		return err
	}
	if linked, err := users.ListAuthorized(ctx); err == nil {
		m.SetLinkedAccounts(float64(len(linked)))
	} else {
		logger.Warn("failed to count linked accounts", zap.Error(err))
	}

	logger.Info("bot started",
		zap.String("version", version),
		zap.String("institution", cfg.Bank.InstitutionName),
		zap.Int("pollers_resumed", resumed),
		zap.Duration("poll_interval_min", cfg.Poll.IntervalMin),
		zap.Duration("poll_interval_max", cfg.Poll.IntervalMax),
	)

	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("telegram bot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func runMigrate(parent context.Context, envFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return config.ErrMissingDB
	}

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, url)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Println("schema is up to date")
	return nil
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// bankName - "Nordea Personal" -> "Nordea" для приветствия
func bankName(institution string) string {
	for i, r := range institution {
		if r == ' ' {
			return institution[:i]
		}
	}
	return institution
}
