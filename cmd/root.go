package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lambda-feedback/procpipe/config"
	"github.com/lambda-feedback/procpipe/internal/shell"
	"github.com/lambda-feedback/procpipe/util/conf"
	"github.com/lambda-feedback/procpipe/util/logging"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	appName  = "procpipe"
	appUsage = `Run pipelines of external processes, chained stdout to stdin,
and collect their output, stderr and exit codes. Pipelines are
run from the command line or served over http, AWS Lambda and
JSON-RPC.`
	// cliMap maps cli flags to their nested config keys
	cliMap = map[string]string{
		"command":      "runtime.command",
		"definitions":  "runtime.definitions",
		"max-workers":  "runtime.max_workers",
		"dedicated":    "runtime.dedicated",
		"timeout":      "runtime.timeout",
		"poll-timeout": "runtime.poll_timeout",
		"api-key":      "auth.key",
	}
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Args:            true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.PathFlag{
				Name:    "env-file",
				Usage:   "a dotenv file to read configuration from.",
				Value:   ".env",
				EnvVars: []string{"ENV_FILE"},
			},
			// pipeline flags
			&cli.StringFlag{
				Name:     "command",
				Usage:    "a shell command, registered as the default pipeline.",
				Aliases:  []string{"c"},
				Category: "pipeline",
				EnvVars:  []string{"PIPELINE_COMMAND"},
			},
			&cli.PathFlag{
				Name:     "definitions",
				Usage:    "a YAML file with named pipeline definitions.",
				Aliases:  []string{"f"},
				Category: "pipeline",
				EnvVars:  []string{"PIPELINE_DEFINITIONS"},
			},
			&cli.DurationFlag{
				Name:     "timeout",
				Usage:    "kill a pipeline that runs longer than this. Zero disables the timeout.",
				Aliases:  []string{"t"},
				Category: "pipeline",
				EnvVars:  []string{"PIPELINE_TIMEOUT"},
			},
			&cli.DurationFlag{
				Name:     "poll-timeout",
				Usage:    "the upper bound of a single wait for pipe readiness.",
				Category: "pipeline",
				EnvVars:  []string{"PIPELINE_POLL_TIMEOUT"},
			},
			&cli.IntFlag{
				Name:     "max-workers",
				Usage:    "the maximum number of concurrently running pipelines. Defaults to the number of CPUs.",
				Aliases:  []string{"n"},
				Category: "pipeline",
				EnvVars:  []string{"PIPELINE_MAX_WORKERS"},
			},
			&cli.BoolFlag{
				Name:     "dedicated",
				Usage:    "run pipelines one at a time.",
				Category: "pipeline",
				EnvVars:  []string{"PIPELINE_DEDICATED"},
			},
			&cli.StringFlag{
				Name:     "api-key",
				Usage:    "require this key in the api-key header of http requests.",
				Category: "http",
				EnvVars:  []string{"API_KEY"},
			},
		},
		Before: func(ctx *cli.Context) error {
			// create the logger
			log, err := createLogger(ctx)
			if err != nil {
				return err
			}

			// inject logger into cli context
			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			// descriptors built without a logger report through the global one
			zap.ReplaceGlobals(log)

			// parse config using defaults, dotenv file, env and flags
			cfg, err := conf.Parse[config.Config](conf.ParseOptions{
				Cli:        ctx,
				CliMap:     cliMap,
				Defaults:   config.DefaultConfig,
				DotEnvFile: ctx.Path("env-file"),
				Log:        log,
			})
			if err != nil {
				return err
			}

			// inject the config into the cli context
			ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

			return nil
		},
		After: func(ctx *cli.Context) error {
			log, err := logging.LoggerFromContext(ctx.Context)
			if err != nil {
				return err
			}

			log.Sync()

			return nil
		},
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

func Execute(params ExecuteParams) {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) {
	err := rootApp.RunContext(ctx, args)

	// if app exited without error, return
	if err == nil {
		return
	}

	// if app exited with ExitError, exit with given exit code
	if exitErr, ok := shell.AsExitError(err); ok {
		if exitErr.ExitCode == 0 {
			return
		}
		os.Exit(exitErr.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())

	// otherwise, exit with exit code 1
	os.Exit(1)
}

func createLogger(ctx *cli.Context) (*zap.Logger, error) {
	level := getLogLevelFromCLI(ctx)
	format := getLogFormatFromCLI(ctx)

	var config zap.Config
	if format == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	config.InitialFields = map[string]any{
		"app": appName,
	}

	config.Level = level

	return config.Build()
}

func getLogFormatFromCLI(ctx *cli.Context) string {
	format := ctx.String("log-format")
	if format != "" {
		return format
	}

	return "production"
}

func getLogLevelFromCLI(ctx *cli.Context) zap.AtomicLevel {
	lvl := ctx.String("log-level")

	if atom, err := zap.ParseAtomicLevel(lvl); err == nil {
		return atom
	}

	return zap.NewAtomicLevelAt(zap.InfoLevel)
}
