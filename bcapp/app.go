package bcapp

import (
	"context"

	"github.com/advdv/bconn"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithShared supplies the application value that every dispatch receives.
func WithShared[S any](shared S) Option {
	return WithFx(fx.Provide(func() S { return shared }))
}

// WithMiddleware wraps the dispatcher with middleware, the first one being the outer most.
func WithMiddleware[S any](m ...bconn.Middleware[S]) Option {
	return WithFx(fx.Supply(m))
}

// FxOptions returns the fx options that make up the DI graph of [NewApp]. It is exported so test
// helpers can build the identical graph.
func FxOptions[E Environment, S any](dispatcher any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	baseOpts := make([]fx.Option, 0, 12+len(cfg.FxOptions))
	baseOpts = append(baseOpts,
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(func(e Environment) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(NewRegistry),
		fx.Provide(NewMetrics),
		fx.Provide(NewScheduler),
		fx.Provide(dispatcher),
		fx.Provide(NewServer[S]),
		fx.Invoke(startServerHook[S]),
	)

	return append(baseOpts, cfg.FxOptions...)
}

// NewApp creates a batteries-included app that serves connections with dependency injection.
//
// The dispatcher argument is an fx constructor that returns a bconn.Dispatcher[S], it can request any
// type that is provided via fx options.
//
// Example:
//
//	bcapp.NewApp[Env, *Shared](NewDispatcher,
//	    bcapp.WithShared(&Shared{DB: db}),
//	    bcapp.WithFx(fx.Provide(NewItemStore)),
//	).Run()
func NewApp[E Environment, S any](dispatcher any, opts ...Option) *App {
	return &App{
		app: fx.New(FxOptions[E, S](dispatcher, opts...)...),
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application with the given context.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
