// Package bcapp wires a [bconn.Server] into a complete application: environment parsing, structured logging,
// OpenTelemetry tracing, prometheus metrics and graceful shutdown.
//
// # Overview
//
// The whole application is an fx graph. A dispatcher constructor is all that is required:
//
//	bcapp.NewApp[Env, *Shared](NewDispatcher,
//	    bcapp.WithShared(&Shared{Store: store}),
//	    bcapp.WithMiddleware[*Shared](requireAuth),
//	    bcapp.WithFx(fx.Provide(NewItemStore)),
//	).Run()
//
// The constructor may request anything in the graph, including the typed environment:
//
//	func NewDispatcher(env Env, store *ItemStore) bconn.Dispatcher[*Shared] {
//	    return bconn.ToDispatcher(handle, 1<<20)
//	}
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    bcapp.BaseEnvironment
//	    StoreDSN string `env:"STORE_DSN,required"`
//	}
//
// BaseEnvironment provides the following environment variables:
//
//	| Variable             | Required | Default      | Description                                       |
//	|----------------------|----------|--------------|---------------------------------------------------|
//	| BC_SERVICE_NAME      | Yes      | -            | Service name for logging and tracing              |
//	| BC_ADDR              | No       | :8080        | TCP address the server listens on                 |
//	| BC_LOG_LEVEL         | No       | info         | Log level (debug, info, warn, error)              |
//	| BC_OTEL_EXPORTER     | No       | stdout       | Trace exporter: "stdout" or "none"                |
//	| BC_METRICS_NAMESPACE | No       | bconn        | Namespace of the prometheus metrics               |
//	| BC_ON_MALFORMED      | No       | reset-buffer | "reset-buffer" or "close-connection"              |
//	| BC_ORDERED_RESPONSES | No       | true         | Write responses in request order                  |
//	| BC_IDLE_TIMEOUT      | No       | 2m           | Close connections that send nothing for this long |
//	| BC_DISPATCH_TIMEOUT  | No       | 30s          | Deadline of every dispatch, 0 disables it         |
//	| BC_READ_SIZE         | No       | 4096         | Bytes read from a connection at a time            |
//	| BC_MAX_HEADER_BYTES  | No       | 32768        | Largest accepted request head                     |
//	| BC_MAX_BODY_BYTES    | No       | 10485760     | Largest accepted request body                     |
//	| BC_MAX_INFLIGHT      | No       | 0            | Concurrent dispatches per server, 0 is unbounded  |
//	| BC_RATE_LIMIT        | No       | 0            | Requests per second per connection, 0 disables it |
//	| BC_RATE_BURST        | No       | 1            | Burst of the per connection rate limit            |
//
// # Request Context
//
// Every dispatch runs with a logger and a span in its context:
//
//	func handle(rc bconn.RequestContext[*Shared], w bconn.ResponseWriter) error {
//	    bcapp.Log(rc).Info("loading item")       // carries trace_id and span_id
//	    bcapp.Span(rc).AddEvent("cache miss")
//	    // ...
//	}
//
// # Testing
//
// The bcapptest package builds the same graph on fxtest, see [bcapptest.New] and [bcapptest.SetBaseEnv].
package bcapp
