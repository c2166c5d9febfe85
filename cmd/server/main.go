package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aliasrelay/backend/internal/auth/jwt"
	"aliasrelay/backend/internal/bootstrap"
	"aliasrelay/backend/internal/config"
	"aliasrelay/backend/internal/delivery"
	"aliasrelay/backend/internal/health"
	"aliasrelay/backend/internal/logger"
	"aliasrelay/backend/internal/monitoring"
	"aliasrelay/backend/internal/notify"
	"aliasrelay/backend/internal/relay"
	"aliasrelay/backend/internal/seed"
	"aliasrelay/backend/internal/service"
	"aliasrelay/backend/internal/smtp"
	httptransport "aliasrelay/backend/internal/transport/http"
	"aliasrelay/backend/internal/websocket"
)

// main 启动 SMTP 中继与 HTTP 旁路服务。
func main() {
	seedOwner := flag.String("seed-owner", "", "内存存储模式下写入示例数据的所有者邮箱")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting alias relay",
		zap.String("email_domain", cfg.Relay.EmailDomain),
		zap.Strings("alias_domains", cfg.Relay.AliasDomains),
		zap.String("outbound", cfg.Outbound.Provider),
		zap.String("notify_mode", cfg.Notify.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seedOwner, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, seedOwner string, log *zap.Logger) error {
	// 存储层
	stores, err := bootstrap.OpenStore(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	store := stores.Store
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close error", zap.Error(err))
		}
	}()

	if stores.Memory && seedOwner != "" {
		res, err := seed.Run(ctx, store, seed.Options{
			OwnerEmail:   seedOwner,
			OwnerName:    "Developer",
			Directory:    "dev",
			AliasAddress: "hello@" + cfg.Relay.EmailDomain,
			Premium:      true,
		})
		if err != nil {
			return fmt.Errorf("failed to seed memory store: %w", err)
		}
		log.Info("development data seeded", zap.String("user_id", res.User.ID), zap.String("alias", res.Alias.Address))
	}

	metrics := monitoring.NewMetrics()

	// 出站投递与签名
	transport, err := delivery.NewTransport(ctx, cfg.Outbound, log)
	if err != nil {
		return fmt.Errorf("failed to initialize outbound transport: %w", err)
	}
	transport = delivery.WithTimeout(transport, cfg.Relay.TransportTimeout)

	signer, err := delivery.LoadSigner(cfg.DKIM, log)
	if err != nil {
		return fmt.Errorf("failed to load dkim key: %w", err)
	}

	// 通知
	mailer := notify.NewMailer(cfg.Relay.NoReplyAddress, transport, signer, log)
	observed := notify.Observed(mailer, func(kind notify.Kind, err error) {
		metrics.RecordNotification(string(kind), err)
	})
	notifiers := bootstrap.BuildNotifier(cfg, observed, log)
	defer func() { _ = notifiers.Close() }()

	// 服务层
	aliasService := service.NewAliasService(store, store, &cfg.Relay)
	entitlement := service.NewEntitlementService(store, store, cfg.Relay.FreeAliasQuota)
	provisioner := service.NewProvisioner(store, store, store, entitlement, notifiers.Notifier, aliasService, log)
	tokens := service.NewTokenGenerator(store, service.TokenConfig{
		Domain:      cfg.Relay.EmailDomain,
		Length:      cfg.Relay.TokenLength,
		MaxAttempts: cfg.Relay.TokenMaxAttempts,
	})
	contactService := service.NewContactService(store, aliasService, tokens, log)
	activityService := service.NewActivityService(store, aliasService)

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	engine := relay.NewEngine(relay.Deps{
		Config:      &cfg.Relay,
		Aliases:     aliasService,
		Provisioner: provisioner,
		Contacts:    contactService,
		Activities:  activityService,
		Domains:     store,
		Tx:          store,
		Notifier:    notifiers.Notifier,
		Signer:      signer,
		Transport:   transport,
		Publisher:   wsHub,
		Recorder:    metrics,
		Logger:      log,
	})

	// SMTP 服务器
	limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxSessions, cfg.SMTP.SessionRate, cfg.SMTP.SessionBurst)
	metrics.TrackActiveSessions(limiter.Current)
	backend := smtp.NewBackend(engine, limiter, cfg.SMTP, log)
	backend.OnReject(metrics.RecordSessionRejected)
	smtpServer := smtp.NewServer(backend, cfg.SMTP, log)

	// 健康检查
	checker := health.NewChecker(log)
	checker.AddStore("store", store.Health)
	if stores.Redis != nil {
		rdb := stores.Redis
		checker.AddPinger("redis", health.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}), 2*time.Second)
	}
	checker.AddTCP("smtp", cfg.SMTP.BindAddr, time.Second)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:     cfg,
		Aliases:    aliasService,
		Contacts:   contactService,
		Activities: activityService,
		Verifier:   jwt.NewVerifier(cfg.JWT.Secret, cfg.JWT.Issuer),
		Hub:        wsHub,
		Metrics:    metrics,
		Health:     checker,
		Logger:     log,
	})
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			return fmt.Errorf("smtp server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		log.Info("starting notification worker", zap.String("mode", cfg.Notify.Mode))
		return notifiers.Run(groupCtx)
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("SMTP server shutdown warning", zap.Error(err))
		}
		log.Info("servers stopped")
		return nil
	})

	return group.Wait()
}
