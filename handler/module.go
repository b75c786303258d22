package handler

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("handler",
		fx.Provide(NewPipelineHandler),
		fx.Provide(NewRootRoute),
		fx.Provide(NewPipelineRoute),
		fx.Provide(NewHealthRoute),
	)
}
