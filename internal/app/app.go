// Package app wires the server together with fx. Constructors run in dependency order,
// so the model is loaded before the router exists and the listener only opens once
// every constructor has succeeded.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Brownie44l1/imgclass-api/internal/config"
	"github.com/Brownie44l1/imgclass-api/internal/handlers"
	"github.com/Brownie44l1/imgclass-api/internal/inference"
	"github.com/Brownie44l1/imgclass-api/internal/metrics"
	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/Brownie44l1/imgclass-api/internal/predict"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// New builds the application for cfg.
func New(cfg *config.Config, logger *zap.Logger) *fx.App {
	return fx.New(Options(cfg, logger), fx.StopTimeout(cfg.Server.ShutdownTimeout))
}

// Options is the full graph: artifacts from disk plus the serving core.
func Options(cfg *config.Config, logger *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		ArtifactsModule,
		CoreModule,
	)
}

// ArtifactsModule loads the model and labels and exposes them to the core.
var ArtifactsModule = fx.Module("artifacts",
	fx.Provide(
		newArtifacts,
		func(a *model.Artifacts) inference.Network { return a.Classifier },
		func(a *model.Artifacts) *model.Labels { return a.Labels },
		func(a *model.Artifacts) handlers.Info {
			return handlers.Info{Device: a.Device().String(), Backbone: a.Architecture.Backbone}
		},
	),
)

// CoreModule needs an inference.Network, *model.Labels and handlers.Info.
var CoreModule = fx.Module("core",
	fx.Provide(
		newRegistry,
		newMetrics,
		newPipeline,
		newEngine,
		newService,
		newRouter,
		newHTTPServer,
	),
	fx.Invoke(func(*http.Server) {}),
)

func newArtifacts(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*model.Artifacts, error) {
	lcfg, err := cfg.LoaderConfig()
	if err != nil {
		return nil, err
	}
	artifacts, err := model.Load(lcfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			artifacts.Close()
			return nil
		},
	})
	return artifacts, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func newPipeline(cfg *config.Config) (*preprocess.Pipeline, error) {
	filter, err := preprocess.ParseFilter(cfg.Preprocess.Filter)
	if err != nil {
		return nil, err
	}
	return preprocess.New(filter, preprocess.WithMaxPixels(cfg.Preprocess.MaxPixels)), nil
}

func newEngine(net inference.Network, labels *model.Labels, m *metrics.Metrics) (*inference.Engine, error) {
	return inference.NewEngine(net, labels.Len(), m)
}

func newService(
	lc fx.Lifecycle,
	cfg *config.Config,
	pipeline *preprocess.Pipeline,
	engine *inference.Engine,
	labels *model.Labels,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*predict.Service, error) {
	opts := []predict.Option{
		predict.WithRecorder(m),
		predict.WithLogger(logger.Named("predict")),
	}

	if cfg.Cache.Enabled {
		cache, err := predict.NewBigCache(predict.CacheConfig{
			LifeWindow: cfg.Cache.LifeWindow,
			MaxEntries: cfg.Cache.MaxEntries,
			MaxSizeMB:  cfg.Cache.MaxSizeMB,
		}, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return cache.Close() },
		})
		opts = append(opts, predict.WithCache(cache))
	}

	return predict.NewService(pipeline, engine, labels, opts...), nil
}

func newRouter(
	cfg *config.Config,
	svc *predict.Service,
	pipeline *preprocess.Pipeline,
	info handlers.Info,
	m *metrics.Metrics,
	reg *prometheus.Registry,
	logger *zap.Logger,
) *gin.Engine {
	info.Filter = string(pipeline.Filter())
	h := handlers.NewHandler(svc, info, cfg.Server.MaxUploadBytes, logger.Named("http"))
	return handlers.NewRouter(h, handlers.RouterOptions{
		AllowOrigin: cfg.Server.AllowOrigin,
		Observer:    m,
		Gatherer:    reg,
		Logger:      logger.Named("http"),
	})
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, router *gin.Engine, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("server shutting down")
			return srv.Shutdown(ctx)
		},
	})

	return srv
}
