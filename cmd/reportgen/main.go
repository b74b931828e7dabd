// Command reportgen is the pipeline's operator-facing CLI: generate a
// report for a ticker, inspect or clear the tiered cache, and print or
// reset the telemetry performance report. Grounded on
// cmd/server/main.go wiring style and on spf13/cobra usage in the
// pack's other CLI tools.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/cache"
	"github.com/Archerouyang/project-alpha/internal/composer"
	"github.com/Archerouyang/project-alpha/internal/config"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/orchestrator"
	polygonprovider "github.com/Archerouyang/project-alpha/internal/provider/polygon"
	"github.com/Archerouyang/project-alpha/internal/stage"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

func newLogger() *zap.Logger {
	if os.Getenv("PIPELINE_ENV") == "production" {
		log, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return log
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return log
}

type appContext struct {
	log      *zap.Logger
	sink     *telemetry.Sink
	tcache   *cache.TieredCache
	cacheCfg config.CacheConfig
}

func buildAppContext(cfgPath string) (*appContext, error) {
	log := newLogger()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading cache config: %w", err)
	}
	sink := telemetry.NewSink(log)

	var disk cache.DiskStore
	switch cfg.ResolvedDiskBackend() {
	case config.DiskBackendRedis:
		disk = cache.NewRedisDiskStore(cfg.RedisAddr, "")
	default:
		disk = cache.NewFileDiskStore(cfg.StoragePath)
	}
	tcache := cache.New(cfg, disk, log, sink)

	return &appContext{log: log, sink: sink, tcache: tcache, cacheCfg: cfg}, nil
}

func main() {
	var cfgPath string
	var outputDir string

	root := &cobra.Command{
		Use:   "reportgen",
		Short: "Generate and inspect chart analysis reports",
	}
	root.PersistentFlags().StringVar(&cfgPath, "cache-config", "config/cache_config.yaml", "path to cache config YAML")
	root.PersistentFlags().StringVar(&outputDir, "output-dir", "generated_reports", "directory to write composed reports into")

	root.AddCommand(newGenerateCmd(&cfgPath, &outputDir))
	root.AddCommand(newCacheCmd(&cfgPath))
	root.AddCommand(newPerfCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newGenerateCmd(cfgPath, outputDir *string) *cobra.Command {
	var interval string
	var numCandles int
	var exchange string

	cmd := &cobra.Command{
		Use:   "generate <ticker>",
		Short: "Generate a report for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := args[0]
			app, err := buildAppContext(*cfgPath)
			if err != nil {
				return err
			}
			defer app.tcache.Close()

			iv, err := model.ParseInterval(interval)
			if err != nil {
				return err
			}
			var exchangePtr *string
			if exchange != "" {
				exchangePtr = &exchange
			}
			reqSpec, err := model.NewRequestSpec(ticker, iv, numCandles, exchangePtr)
			if err != nil {
				return err
			}

			provider := polygonprovider.New(config.EnvPolygonKey(), app.log)
			chartStage := stage.NewChartStage(app.tcache, app.sink, app.log)
			analyzeStage := stage.NewAnalyzeStage(config.EnvGeminiKey(), app.tcache, app.sink, app.log)
			comp := composer.NewPureGoComposer()

			orch := orchestrator.New(provider, app.tcache, chartStage, analyzeStage, comp, nil, app.sink, app.log, *outputDir)

			path, message, err := orch.GenerateReport(context.Background(), reqSpec)
			if err != nil {
				return fmt.Errorf("%s: %w", message, err)
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "1d", "candle interval")
	cmd.Flags().IntVar(&numCandles, "num-candles", 100, "number of candles to fetch")
	cmd.Flags().StringVar(&exchange, "exchange", "", "optional exchange override")
	return cmd
}

func newCacheCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Inspect or clear the tiered cache"}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print memory-tier entry count",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(*cfgPath)
			if err != nil {
				return err
			}
			defer app.tcache.Close()
			fmt.Printf("memory entries: %d\n", app.tcache.Stats())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear-expired",
		Short: "Remove expired entries from both cache tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(*cfgPath)
			if err != nil {
				return err
			}
			defer app.tcache.Close()
			removed, err := app.tcache.ClearExpired(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired entries\n", removed)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear-all",
		Short: "Empty both cache tiers unconditionally",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(*cfgPath)
			if err != nil {
				return err
			}
			defer app.tcache.Close()
			return app.tcache.ClearAll(context.Background())
		},
	})
	return cmd
}

func newPerfCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "perf", Short: "Inspect or reset telemetry"}

	cmd.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Print the performance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(*cfgPath)
			if err != nil {
				return err
			}
			defer app.tcache.Close()
			fmt.Print(app.sink.Report())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset telemetry stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildAppContext(*cfgPath)
			if err != nil {
				return err
			}
			defer app.tcache.Close()
			app.sink.Reset()
			return nil
		},
	})
	return cmd
}
