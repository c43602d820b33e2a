package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/imgclass-api/internal/app"
	"github.com/Brownie44l1/imgclass-api/internal/config"
	"github.com/Brownie44l1/imgclass-api/internal/logging"
	"github.com/Brownie44l1/imgclass-api/internal/model"
)

// GlobalFlags override values from the config file when set.
type GlobalFlags struct {
	ConfigPath string
	ModelPath  string
	LabelPath  string
	Device     string
	Filter     string
	Port       int
	LogLevel   string
	LogFormat  string
}

var globalFlags GlobalFlags

var rootCmd = &cobra.Command{
	Use:   "imgclass",
	Short: "Image classification HTTP server",
	Long: `Serves a fine-tuned ResNet-50 classifier over HTTP.

  GET  /health         - health check
  POST /predict        - multipart upload, field "image"
  POST /predict/image  - same as /predict
  POST /predict/tensor - JSON {"image": [...]} of normalized values
  GET  /metrics        - Prometheus metrics

Upload test: curl -X POST -F "image=@cat.jpg" http://localhost:8080/predict`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the model and serve predictions (default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalFlags.ConfigPath, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&globalFlags.ModelPath, "model", "", "ONNX model path")
	flags.StringVar(&globalFlags.LabelPath, "labels", "", "class label file (json, yaml or text)")
	flags.StringVar(&globalFlags.Device, "device", "", "compute device: auto|cpu|cuda")
	flags.StringVar(&globalFlags.Filter, "filter", "", "resize filter: bilinear|lanczos")
	flags.IntVarP(&globalFlags.Port, "port", "p", 0, "listen port")
	flags.StringVar(&globalFlags.LogLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&globalFlags.LogFormat, "log-format", "", "log format: json|console")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
}

// loadConfig reads the config file, applies flag overrides and resolves artifact paths.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model.Path = globalFlags.ModelPath
	}
	if flags.Changed("labels") {
		cfg.Model.Labels = globalFlags.LabelPath
	}
	if flags.Changed("device") {
		cfg.Model.Device = globalFlags.Device
	}
	if flags.Changed("filter") {
		cfg.Preprocess.Filter = globalFlags.Filter
	}
	if flags.Changed("port") {
		cfg.Server.Port = globalFlags.Port
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = globalFlags.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = globalFlags.LogFormat
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg.ResolvePaths(wd)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)

	application := app.New(cfg, logger)
	if err := application.Err(); err != nil {
		return startupFailure(logger, err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := application.Start(startCtx); err != nil {
		return startupFailure(logger, err)
	}

	sig := <-application.Done()
	logger.Info("received signal", zap.String("signal", sig.String()))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stopCancel()
	return application.Stop(stopCtx)
}

func startupFailure(logger *zap.Logger, err error) error {
	if model.IsStartupError(err) {
		logger.Error("failed to load model artifacts", zap.Error(err))
		return fmt.Errorf("failed to load model artifacts: %w", err)
	}
	logger.Error("failed to start server", zap.Error(err))
	return err
}
