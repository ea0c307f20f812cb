package bcapp

import (
	"context"

	"github.com/advdv/bconn"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ServerParams holds the dependencies for creating a connection server.
type ServerParams[S any] struct {
	fx.In

	Env         Environment
	Shared      S
	Dispatcher  bconn.Dispatcher[S]
	Middleware  []bconn.Middleware[S] `optional:"true"`
	Logger      *zap.Logger
	Metrics     *bconn.Metrics
	TracerProv  trace.TracerProvider
	Propagator  propagation.TextMapPropagator
	ContextInit bconn.ContextInitFunc[S] `optional:"true"`
}

// NewScheduler creates the task group that runs dispatches, bounded by BC_MAX_INFLIGHT.
func NewScheduler(env Environment) *bconn.TaskGroup {
	return bconn.NewTaskGroup(env.connSettings().MaxInflight)
}

// NewServer creates the connection server with the parser, scheduler and observability configured from
// the environment.
func NewServer[S any](params ServerParams[S], sched *bconn.TaskGroup) *bconn.Server[S] {
	cs := params.Env.connSettings()

	parser := bconn.NewHTTPParser()
	parser.MaxHeaderBytes = cs.MaxHeaderBytes
	parser.MaxBodyBytes = cs.MaxBodyBytes

	mw := make([]bconn.Middleware[S], 0, 2+len(params.Middleware))
	mw = append(mw,
		withRequestDep[S](&requestDep{logger: params.Logger}),
		bconn.WithDeadline[S](cs.DispatchTimeout))
	mw = append(mw, params.Middleware...)

	return bconn.NewServer(bconn.Config[S]{
		Dispatcher:       bconn.Wrap(params.Dispatcher, mw...),
		Parser:           parser,
		Scheduler:        sched,
		ContextInit:      params.ContextInit,
		Logger:           newZapConnLogger(params.Logger),
		Metrics:          params.Metrics,
		TracerProvider:   params.TracerProv,
		Propagator:       params.Propagator,
		OnMalformed:      cs.OnMalformed,
		OrderedResponses: cs.OrderedResponses,
		IdleTimeout:      cs.IdleTimeout,
		ReadSize:         cs.ReadSize,
		RateLimit:        rate.Limit(cs.RateLimit),
		RateBurst:        cs.RateBurst,
	}, params.Shared)
}

// startServerHook registers lifecycle hooks for the connection server.
func startServerHook[S any](lc fx.Lifecycle, server *bconn.Server[S], env Environment, logger *zap.Logger) {
	var serveCtx context.Context
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := server.Listen(ctx, "tcp", env.addr())
			if err != nil {
				return err
			}

			logger.Info("starting server", zap.String("addr", ln.Addr().String()))

			serveCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
			go func() {
				if err := server.Serve(serveCtx, ln); err != nil && !errors.Is(err, bconn.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			defer cancel()

			return server.Shutdown(ctx)
		},
	})
}
