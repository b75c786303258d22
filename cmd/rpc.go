package cmd

import (
	"github.com/lambda-feedback/procpipe/app"
	"github.com/lambda-feedback/procpipe/app/rpc"
	"github.com/lambda-feedback/procpipe/internal/ipc"
	"github.com/lambda-feedback/procpipe/util/logging"
	"github.com/urfave/cli/v2"
)

var (
	rpcCmdDescription = `The rpc command serves pipelines over JSON-RPC 2.0 on a unix
socket. The "pipeline_run" method takes the pipeline name and
an object with the stdin and its encoding, "pipeline_list"
lists all pipelines.

The command will listen on the socket and blocks indefinitely,
processing incoming calls.`
	rpcCmd = &cli.Command{
		Name:        "rpc",
		Usage:       "Serve pipelines over JSON-RPC on a unix socket.",
		Description: rpcCmdDescription,
		Action:      rpcAction,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     "endpoint",
				Aliases:  []string{"s"},
				Usage:    "The path of the unix socket.",
				Value:    "/tmp/procpipe.sock",
				Category: "rpc",
				EnvVars:  []string{"RPC_ENDPOINT"},
			},
		},
	}
)

func rpcAction(ctx *cli.Context) error {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return err
	}

	app, err := app.New(ctx)
	if err != nil {
		return err
	}

	cfg := ipc.Config{Endpoint: ctx.Path("endpoint")}

	log.Info("starting json-rpc server")

	return app.Run(ctx.Context, rpc.Module(cfg))
}

func init() {
	rootApp.Commands = append(rootApp.Commands, rpcCmd)
}
