package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/otterbox/internal/app"
	"github.com/florianilch/otterbox/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "otterbox",
		Usage: "Authenticated client and content cache for Funkwhale servers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otlp|stdout-otel)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write text/json logs to a rotating file instead of stderr",
			},
			&cli.StringFlag{
				Name:  "log-otlp-protocol",
				Usage: "OTLP transport for the otlp log format (http/protobuf|grpc)",
			},
			&cli.StringFlag{
				Name:  "server--base-url",
				Usage: "music server base URL",
				Value: app.DefaultConfigServerBaseURL,
			},
			&cli.BoolFlag{
				Name:  "server--anonymous",
				Usage: "send requests without credentials",
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "credential storage (file|env|keyring)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.BoolFlag{
				Name:  "cache--disabled",
				Usage: "disable the content cache",
			},
			&cli.StringFlag{
				Name:  "cache--dir",
				Usage: "content cache directory",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			getCommand(),
			cacheCommand(),
			serveCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a local read-through gateway in front of the server API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway--host",
				Usage: "gateway host",
				Value: app.DefaultConfigGatewayHost,
			},
			&cli.IntFlag{
				Name:  "gateway--port",
				Usage: "gateway port",
				Value: int(app.DefaultConfigGatewayPort),
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

// setup loads the configuration, installs logging and builds the App.
// The returned function flushes log output and must be called before exit.
func setup(ctx context.Context, cmd *cli.Command) (*app.App, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownLogging, err := observability.Instrument(ctx, observability.Options{
		Level:        cfg.LogLevel,
		Format:       string(cfg.LogFormat),
		File:         cfg.LogFile,
		OTLPProtocol: cfg.LogOTLPProtocol,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	shutdown := func() {
		if err := shutdownLogging(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
		}
	}

	application, err := app.New(cfg)
	if err != nil {
		shutdown()
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	return application, shutdown, nil
}
