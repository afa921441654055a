package main

import (
	"context"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fictotum/config"
	"github.com/Ramsey-B/fictotum/internal/platform/logging"
	"github.com/Ramsey-B/fictotum/internal/platform/tracing"
	"github.com/Ramsey-B/fictotum/internal/platform/tracing/exporters"
)

var (
	cfg    *config.Config
	logger ectologger.Logger = logging.Discard()

	zapLogger      *zap.Logger
	tracerShutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:          "fictotum",
	Short:        "Entity resolution and graph merge engine",
	Long:         "Imports curated batches of historical figures and media works into the graph, resolves duplicates against existing entities and consolidates duplicate nodes.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		l, zl, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.PrettyLogs})
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logger, zapLogger = l, zl

		otlp := exporters.DefaultOTLPConfig()
		if cfg.OTELExporterEndpoint != "" {
			otlp.Endpoint = cfg.OTELExporterEndpoint
		}
		otlp.Protocol = cfg.OTELExporterProtocol
		otlp.Insecure = cfg.OTELExporterInsecure
		if otlp.Headers, err = exporters.ParseHeaders(cfg.OTELExporterHeaders); err != nil {
			return eris.Wrap(err, "init tracing")
		}
		shutdown, err := tracing.Setup(cmd.Context(), tracing.ProviderConfig{
			ServiceName: cfg.AppName,
			Exporter:    cfg.OTELExporter,
			OTLP:        otlp,
		})
		if err != nil {
			return eris.Wrap(err, "init tracing")
		}
		tracerShutdown = shutdown
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tracerShutdown != nil {
			_ = tracerShutdown(context.Background())
		}
		if zapLogger != nil {
			_ = zapLogger.Sync()
		}
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
