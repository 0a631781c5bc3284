package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	grpcweb "github.com/Millione/grpc-web"
	"github.com/Millione/grpc-web/config"
	"github.com/Millione/grpc-web/internal/echoserver"
)

var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "grpcwebproxy_requests_total",
	Help: "Requests served, by kind.",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(requestsTotal)
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy",
		RunE: func(*cobra.Command, []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	return cmd
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	inner := echoserver.New()

	webOpts := []grpcweb.Option{
		grpcweb.WithCORS(cfg.CORS.Rules()),
		grpcweb.WithWebSockets(cfg.Web.WebSockets),
		grpcweb.WithLogger(logger),
	}
	if cfg.Web.MaxFrameSize > 0 {
		webOpts = append(webOpts, grpcweb.WithMaxFrameSize(cfg.Web.MaxFrameSize))
	}
	web, err := grpcweb.Wrap(inner, webOpts...)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Route translated gRPC-Web, native gRPC and plain HTTP on one port.
	// The gRPC-Web check runs first: its content types share the
	// application/grpc prefix.
	combined := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case grpcweb.IsGRPCWebRequest(r), grpcweb.IsPreflightRequest(r), grpcweb.IsWebSocketRequest(r):
			requestsTotal.WithLabelValues("grpcweb").Inc()
			web.ServeHTTP(w, r)
		case r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), grpcweb.ContentTypeGRPC):
			requestsTotal.WithLabelValues("grpc").Inc()
			inner.ServeHTTP(w, r)
		default:
			requestsTotal.WithLabelValues("http").Inc()
			router.ServeHTTP(w, r)
		}
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(requestID(combined), &http2.Server{}),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Server.Addr),
			zap.Bool("websockets", cfg.Web.WebSockets))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
		server.Close()
	}
	inner.GracefulStop()
	logger.Info("stopped")
	return <-errCh
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", cfg.Level, err)
	}
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}

// requestID echoes the inbound x-request-id on the response, generating
// one when the client sent none.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
