package ipc

import "go.uber.org/fx"

func Module(config Config) fx.Option {
	return fx.Module("ipc",
		// provide config
		fx.Supply(config),
		// provide server
		fx.Provide(NewLifecycleServer),
		// invoke server
		fx.Invoke(func(*Server) {}),
	)
}
