package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/quantbt-lab/quantbt/internal/backtest/engine"
	"github.com/quantbt-lab/quantbt/internal/backtest/service"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/strategy"
	"github.com/quantbt-lab/quantbt/internal/types"
)

// runFile is the YAML run configuration accepted by the CLI.
type runFile struct {
	service.SubmitRequest `yaml:",inline"`

	// Lookback is the per-symbol bar history capacity.
	Lookback int `yaml:"lookback"`
	// Output is where the result YAML is written; empty skips the write.
	Output string `yaml:"output"`
}

// backtestAction loads the run config, executes the backtest synchronously
// with a progress bar, and writes the result.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read run config: %w", err)
	}

	var cfg runFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse run config: %w", err)
	}

	log, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	registry := strategy.NewDefaultRegistry()

	reg, err := registry.Resolve(cfg.StrategyID)
	if err != nil {
		return err
	}

	strat := reg.Factory()
	if err := strat.Initialize(cfg.Params); err != nil {
		return err
	}

	resolver := service.NewFileFeedResolver(log)

	feeds, err := resolver.Resolve(ctx, cfg.Data)
	if err != nil {
		return err
	}

	runner := engine.NewRunner(engine.RunConfig{
		StrategyID:   cfg.StrategyID,
		StartTime:    cfg.StartTime,
		EndTime:      cfg.EndTime,
		Broker:       cfg.Broker,
		BarsPerYear:  cfg.BarsPerYear,
		RiskFreeRate: cfg.RiskFreeRate,
		Lookback:     cfg.Lookback,
	}, strat, feeds, log)

	var bar *progressbar.ProgressBar

	runner.OnProgress(func(done, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total))
		}

		_ = bar.Set(done)
	})

	result := runner.Run(ctx)

	fmt.Println(engine.Describe(result))

	if result.Error != "" {
		fmt.Printf("error: %s\n", result.Error)
	}

	for _, warning := range result.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}

	if cfg.Output != "" {
		if err := types.WriteResult(cfg.Output, result); err != nil {
			return err
		}

		fmt.Printf("result written to %s\n", cfg.Output)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run a backtest from a YAML run config",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML run config",
				Required: true,
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
