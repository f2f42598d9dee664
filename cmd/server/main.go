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

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/hairtype-api/internal/cache"
	"github.com/Brownie44l1/hairtype-api/internal/config"
	"github.com/Brownie44l1/hairtype-api/internal/events"
	"github.com/Brownie44l1/hairtype-api/internal/handlers"
	"github.com/Brownie44l1/hairtype-api/internal/metrics"
	"github.com/Brownie44l1/hairtype-api/internal/middleware"
	"github.com/Brownie44l1/hairtype-api/internal/model"
	"github.com/Brownie44l1/hairtype-api/internal/product"
	"github.com/Brownie44l1/hairtype-api/internal/router"
	"github.com/Brownie44l1/hairtype-api/internal/service"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		middleware.Logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	middleware.Logger.Info().Msg("server exited")
}

// run returns once the server has shut down. Deferred cleanups have already
// run by the time main sees the error.
func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		middleware.InitLogger("info", "hairtype-api")
		return err
	}

	middleware.InitLogger(cfg.LogLevel, "hairtype-api")
	log := middleware.Logger

	root, err := config.ProjectRoot()
	if err != nil {
		return err
	}
	cfg.Resolve(root)

	if cfg.Environment == "release" || os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	classifier, err := loadClassifier(ctx, cfg)
	if err != nil {
		return err
	}
	if s, ok := classifier.(*model.Server); ok {
		defer s.Close()
	}

	m := metrics.New()

	productCache := cache.New(ctx, cfg.RedisURL, log)
	defer productCache.Close()

	sink := openSink(ctx, cfg)
	defer sink.Close()

	svc := service.NewProductService(
		product.NewFileStore(cfg.ProductsPath),
		service.WithCache(productCache),
		service.WithSink(sink),
		service.WithMetrics(m),
		service.WithLogger(log),
	)

	r := router.New(handlers.NewHandler(classifier, m), handlers.NewProductHandler(svc), m)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("port", cfg.Port).
		Str("model", cfg.ModelPath).
		Bool("model_loaded", classifier.Loaded()).
		Strs("classes", classifier.Labels()).
		Str("products", cfg.ProductsPath).
		Bool("cache", productCache.Enabled()).
		Strs("endpoints", router.Endpoints).
		Msg("server starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadClassifier loads the ONNX model and runs a self-test prediction. When
// the model is optional a failed load leaves the product endpoints serving
// and every analyze request failing with the load error.
func loadClassifier(ctx context.Context, cfg *config.Config) (model.Classifier, error) {
	log := middleware.Logger

	log.Info().Str("path", cfg.ModelPath).Msg("loading model")
	s, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, cfg.OnnxLibPath)
	if err != nil {
		if cfg.RequireModel {
			return nil, fmt.Errorf("failed to initialize model server: %w", err)
		}
		log.Error().Err(err).Msg("model unavailable, analyze endpoint disabled")
		return &model.Unavailable{ModelPath: cfg.ModelPath, Err: err}, nil
	}

	result, err := model.SelfTest(ctx, s)
	if err != nil {
		log.Warn().Err(err).Msg("model self-test failed")
		return s, nil
	}
	evt := log.Info()
	for _, ls := range result.Top(-1) {
		evt = evt.Float32(ls.Label, ls.Probability)
	}
	evt.Msg("model self-test passed")
	return s, nil
}

func openSink(ctx context.Context, cfg *config.Config) events.Sink {
	log := middleware.Logger
	if cfg.ClickHouse.Host == "" {
		log.Info().Msg("clickhouse: no host configured, engagement events disabled")
		return events.NopSink{}
	}

	sink, err := events.NewClickHouseSink(ctx, events.ClickHouseOptions{
		Host:     cfg.ClickHouse.Host,
		Port:     cfg.ClickHouse.Port,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		log.Warn().Err(err).Msg("clickhouse: connection failed, engagement events disabled")
		return events.NopSink{}
	}
	log.Info().Str("host", cfg.ClickHouse.Host).Msg("clickhouse: recording engagement events")
	return sink
}
