// cmd/maskpipe/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/David-Botos/data-egress/pkg/config"
	"github.com/David-Botos/data-egress/pkg/pipeline"
	"github.com/David-Botos/data-egress/pkg/state"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the run configuration file")
	mode := flag.String("mode", "", "override the configured run mode (delta or full)")
	dryRun := flag.Bool("dry-run", false, "extract and mask but skip all destination writes")
	flag.Parse()

	// Local development secrets; absent in deployed environments.
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *mode != "" {
		if *mode != "delta" && *mode != "full" {
			fmt.Fprintf(os.Stderr, "invalid -mode %q: must be delta or full\n", *mode)
			os.Exit(1)
		}
		cfg.Mode = *mode
	}
	if *dryRun {
		cfg.DryRun = true
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	st, err := state.Open(cfg.StateFile, logger)
	if err != nil {
		logger.Fatal("Failed to open watermark state", zap.Error(err))
	}

	p := pipeline.New(cfg, pipeline.Mode(cfg.Mode), st, logger)
	if err := p.Run(context.Background()); err != nil {
		logger.Error("Run failed", zap.Error(err))
		os.Exit(1)
	}
}

// newLogger builds the process logger from the configured level and format.
func newLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	return zapCfg.Build()
}
