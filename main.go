package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kinetic-exhibits/marathon-backend/app"
	"github.com/kinetic-exhibits/marathon-backend/config"
)

func main() {
	cliApp := &cli.App{
		Name:  "marathon-backend",
		Usage: "station messaging and leaderboard backend for the marathon exhibit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.NewApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting marathon backend",
		slog.String("nats_url", cfg.NATS.URL),
		slog.String("http_address", cfg.HTTP.Address),
	)
	return application.Run(ctx)
}
