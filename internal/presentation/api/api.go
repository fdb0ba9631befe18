package api

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/configs"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/logging"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/metrics"
	"github.com/HarshitGajawada/sync-sketch-collaboration/internal/infrastructure/ratelimiter"
	auditHandler "github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/audit"
	boardsHandler "github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/boards"
	chatHandler "github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/chat"
	healthHandler "github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/health"
	socketHandler "github.com/HarshitGajawada/sync-sketch-collaboration/internal/presentation/handler/socket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	config        configs.Config
	boardsHandler *boardsHandler.Handler
	chatHandler   *chatHandler.Handler
	socketHandler *socketHandler.Handler
	healthHandler *healthHandler.Handler
	auditHandler  *auditHandler.Handler
	logger        logging.Logger
	ratelimiter   ratelimiter.Limiter
	metrics       *metrics.Metrics
}

func NewApplication(
	config configs.Config,
	boardsHandler *boardsHandler.Handler,
	chatHandler *chatHandler.Handler,
	socketHandler *socketHandler.Handler,
	healthHandler *healthHandler.Handler,
	auditHandler *auditHandler.Handler,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
	metrics *metrics.Metrics,
) *Application {
	return &Application{
		config:        config,
		boardsHandler: boardsHandler,
		chatHandler:   chatHandler,
		socketHandler: socketHandler,
		healthHandler: healthHandler,
		auditHandler:  auditHandler,
		logger:        logger,
		ratelimiter:   ratelimiter,
		metrics:       metrics,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(app.loggerMiddleware)
	r.Use(app.prometheusMiddleware)
	r.Use(app.enableCors)

	r.Handle("/metrics", app.metrics.Handler())
	r.Handle("/debug/vars", expvar.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetHealth)

		// The socket outlives any request timeout.
		r.Get("/ws", app.socketHandler.ConnectHandler)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if app.ratelimiter != nil {
				r.Use(app.rateLimiterMiddleware)
			}

			r.Route("/boards/{boardId}", func(r chi.Router) {
				r.Get("/", app.boardsHandler.GetBoardHandler)
				r.Put("/", app.boardsHandler.PutBoardHandler)
				if app.auditHandler != nil {
					r.Get("/events", app.auditHandler.GetEventsHandler)
				}
			})
			r.Get("/chat/{boardId}", app.chatHandler.GetHistoryHandler)
		})
	})

	return otelhttp.NewHandler(r, "sync-sketch-http")
}

// Run serves until SIGINT or SIGTERM. onShutdown runs after the listener
// stopped accepting requests and before Run returns.
func (app *Application) Run(mux http.Handler, onShutdown func(ctx context.Context)) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.healthHandler.SetHealthy(false)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "signal caught", map[logging.ExtraKey]any{
			"signal": s.String(),
		})

		err := srv.Shutdown(ctx)
		if onShutdown != nil {
			onShutdown(ctx)
		}
		shutdown <- err
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	return nil
}
