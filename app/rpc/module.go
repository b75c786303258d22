package rpc

import (
	"go.uber.org/fx"

	"github.com/lambda-feedback/procpipe/internal/ipc"
	"github.com/lambda-feedback/procpipe/util/logging"
)

func Module(config ipc.Config) fx.Option {
	return fx.Module(
		"rpc",
		// rename logger for module
		logging.DecorateLogger("rpc"),
		// provide json-rpc server
		ipc.Module(config),
	)
}
