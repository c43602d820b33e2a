package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/imgclass-api/internal/inference"
	"github.com/Brownie44l1/imgclass-api/internal/logging"
	"github.com/Brownie44l1/imgclass-api/internal/model"
	"github.com/Brownie44l1/imgclass-api/internal/predict"
	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// classifyOutput is one line of classify output.
type classifyOutput struct {
	File  string `json:"file"`
	Index *int   `json:"predicted_index,omitempty"`
	Label string `json:"predicted_label,omitempty"`
	Error string `json:"error,omitempty"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify FILE...",
	Short: "Classify image files and print one JSON result per line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		lcfg, err := cfg.LoaderConfig()
		if err != nil {
			return err
		}
		artifacts, err := model.Load(lcfg, logger)
		if err != nil {
			return startupFailure(logger, err)
		}
		defer artifacts.Close()

		filter, err := preprocess.ParseFilter(cfg.Preprocess.Filter)
		if err != nil {
			return err
		}
		engine, err := inference.NewEngine(artifacts.Classifier, artifacts.Labels.Len(), nil)
		if err != nil {
			return err
		}
		pipeline := preprocess.New(filter, preprocess.WithMaxPixels(cfg.Preprocess.MaxPixels))
		svc := predict.NewService(pipeline, engine, artifacts.Labels,
			predict.WithLogger(logger.Named("predict")))

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, path := range args {
			out := classifyOutput{File: path}

			data, err := os.ReadFile(path)
			if err != nil {
				out.Error = err.Error()
			} else if result, err := svc.Predict(data); err != nil {
				out.Error = err.Error()
			} else {
				index := result.Index
				out.Index = &index
				out.Label = result.Label
			}

			if out.Error != "" {
				logger.Warn("classification failed", zap.String("file", path), zap.String("error", out.Error))
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
		return nil
	},
}
