package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vx-labs/framelock/network"
)

var version = "dev"

// Version is set at build time with -ldflags "-X github.com/vx-labs/framelock/cli.version=..."
func Version() string {
	return version
}

type Context struct {
	ID     string
	Logger *zap.Logger
}

func Bootstrap(fields ...zap.Field) *Context {
	id := uuid.New().String()
	ctx := &Context{
		ID: id,
	}
	var logger *zap.Logger
	var err error
	fields = append([]zap.Field{
		zap.String("instance_id", id), zap.String("version", Version()),
	}, fields...)
	opts := []zap.Option{
		zap.Fields(fields...),
	}
	if os.Getenv("ENABLE_PRETTY_LOG") == "true" {
		logger, err = zap.NewDevelopment(opts...)
	} else {
		logger, err = zap.NewProduction(opts...)
	}
	if err != nil {
		panic(err)
	}
	ctx.Logger = logger
	return ctx
}

// SignalContext is cancelled on the first termination signal.
func (ctx *Context) SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		defer signal.Stop(sigc)
		select {
		case <-sigc:
			ctx.Logger.Info("received termination signal")
			cancel()
		case <-runCtx.Done():
		}
	}()
	return runCtx, cancel
}

type HealthChecker interface {
	Health() string
}

func HealthHandler(gatherer prometheus.Gatherer, checkers ...HealthChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		for _, checker := range checkers {
			switch checker.Health() {
			case "warning":
				w.WriteHeader(http.StatusTooManyRequests)
				return
			case "critical":
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ServeHTTPHealth serves /metrics and /health until the returned server is
// shut down.
func ServeHTTPHealth(logger *zap.Logger, conf network.Configuration, gatherer prometheus.Gatherer, checkers ...HealthChecker) *http.Server {
	server := &http.Server{
		Addr:              conf.Address(),
		Handler:           HealthHandler(gatherer, checkers...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving health endpoint", zap.String("bind_address", conf.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to run healthcheck endpoint", zap.Error(err))
		}
	}()
	return server
}
