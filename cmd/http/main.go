package main

import (
	"context"
	"expvar"
	"log"
	"runtime"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/chat"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/application/usecases/snapshot"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/auth"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/configs"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/env"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/metrics"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ratelimiter"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/tracing"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ws"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/api"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/audit"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/boards"
	chatHandler "github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/chat"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/health"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/socket"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "sync-sketch-relay"
)

func main() {
	if err := env.Load(".env"); err != nil {
		log.Fatal(err)
	}

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logger.FilePath,
		Encoding: cfg.Logger.Encoding,
		Level:    cfg.Logger.Level,
		Logger:   cfg.Logger.Logger,
		AppName:  serviceName,
	})
	defer logger.Sync()

	sh, err := tracing.InitTracer(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		ServiceName: serviceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "failed to initialize the tracer", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(context.Background())

	m := metrics.New()

	mp, err := m.MeterProvider(serviceName)
	if err != nil {
		logger.Fatal(logging.Prometheus, logging.Startup, "failed to initialize the meter provider", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	otel.SetMeterProvider(mp)
	defer mp.Shutdown(context.Background())

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "failed to open stores", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	defer st.Close()

	publisher, err := st.auditPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal(logging.RabbitMQ, logging.Startup, "failed to set up the audit trail", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}

	chatUseCase := chat.NewChatUseCase(st.chats, chat.Options{
		Capacity: cfg.Chat.Capacity,
		History:  cfg.Chat.History,
	}, logger, m)
	snapshotUseCase := snapshot.NewSnapshotUseCase(st.boards, publisher, cfg.Snapshot.SaveTimeout, logger, m)

	// Connections never move between nodes, so their budget stays local.
	eventLimiter := ratelimiter.NewLocal(ratelimiter.Options{
		MaxRatePerSecond: cfg.Relay.EventsPerSecond,
		MaxBurst:         cfg.Relay.EventBurst,
	})

	wsCore := ws.NewCore(chatUseCase, snapshotUseCase, publisher, eventLimiter, ws.Options{
		AutosaveInterval: cfg.Snapshot.AutosaveInterval,
		InboundQueueSize: cfg.Relay.InboundQueueSize,
		FlushTimeout:     cfg.Snapshot.FlushTimeout,
	}, logger, m)

	coreCtx, stopCore := context.WithCancel(ctx)
	coreDone := make(chan struct{})
	go func() {
		defer close(coreDone)
		wsCore.Run(coreCtx)
	}()

	httpLimiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		Cache:            st.rateLimitStore(cfg),
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
		KeyPrefix:        "http:",
	})

	var verifier auth.Verifier = auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if cfg.Auth.InsecureIdentity {
		logger.Warn(logging.General, logging.Startup, "trusting identity query parameters", nil)
		verifier = auth.InsecureVerifier{}
	} else if cfg.Auth.JWTSecret == "" {
		logger.Fatal(logging.General, logging.Startup, "auth.jwt_secret is required", nil)
	}

	var auditHandler *audit.Handler
	if st.audit != nil {
		auditHandler = audit.NewHandler(st.audit)
	}

	app := api.NewApplication(
		*cfg,
		boards.NewHandler(snapshotUseCase, wsCore),
		chatHandler.NewHandler(chatUseCase),
		socket.NewHandler(verifier, wsCore, ws.NewUpgrader(cfg.HTTP.AllowedOrigins), cfg.Relay, logger),
		health.NewHandler(wsCore),
		auditHandler,
		logger,
		httpLimiter,
		m,
	)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))
	expvar.Publish("autosave_timers", expvar.Func(func() any {
		return wsCore.ActiveTimers()
	}))

	mux := app.Mount()
	err = app.Run(mux, func(context.Context) {
		// Run flushes dirty rooms before it returns.
		stopCore()
		<-coreDone
	})
	if err != nil {
		logger.Fatal(logging.General, logging.Shutdown, "server stopped with error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}
