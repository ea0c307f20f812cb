package bconn

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

// DefaultReadSize is the size of the chunks Serve reads from the transport.
const DefaultReadSize = 4096

// OnMalformed decides what happens to a connection after its buffer turned out to be malformed and the
// error response was sent.
type OnMalformed int

const (
	// MalformedResetBuffer discards everything buffered and keeps the connection open, so the next bytes
	// can start a fresh request.
	MalformedResetBuffer OnMalformed = iota
	// MalformedCloseConn closes the connection.
	MalformedCloseConn
)

func (p OnMalformed) String() string {
	switch p {
	case MalformedResetBuffer:
		return "reset-buffer"
	case MalformedCloseConn:
		return "close-connection"
	default:
		return "unknown"
	}
}

// UnmarshalText parses "reset-buffer" or "close-connection".
func (p *OnMalformed) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "reset-buffer", "":
		*p = MalformedResetBuffer
	case "close-connection":
		*p = MalformedCloseConn
	default:
		return errors.Newf("invalid malformed request policy %q (supported: reset-buffer, close-connection)", text)
	}

	return nil
}

// Config is shared by all connections of a server. S is the type of the application-wide value that is
// handed to every dispatch, it is never mutated by this package.
type Config[S any] struct {
	// Dispatcher receives every complete request. Required.
	Dispatcher Dispatcher[S]
	// Parser frames requests, defaults to [NewHTTPParser].
	Parser Parser
	// Scheduler runs dispatch tasks, defaults to an unbounded [TaskGroup].
	Scheduler Scheduler
	// ContextInit builds request contexts, defaults to [StdContextInit].
	ContextInit ContextInitFunc[S]
	// Logger defaults to [NopLogger].
	Logger Logger
	// Metrics is optional.
	Metrics *Metrics
	// TracerProvider defaults to a noop provider.
	TracerProvider trace.TracerProvider
	// Propagator extracts trace context from request headers, defaults to W3C trace context and baggage.
	Propagator propagation.TextMapPropagator

	OnMalformed OnMalformed
	// OrderedResponses makes responses leave in the order their requests were parsed.
	OrderedResponses bool
	// IdleTimeout closes a connection that sent nothing for this long. Zero disables it.
	IdleTimeout time.Duration
	// ReadSize defaults to [DefaultReadSize].
	ReadSize int
	// RateLimit bounds the requests per second of a single connection. Zero disables it.
	RateLimit rate.Limit
	RateBurst int
}

func (cfg Config[S]) withDefaults() Config[S] {
	if cfg.Dispatcher == nil {
		panic("bconn: config without a dispatcher")
	}

	if cfg.Parser == nil {
		cfg.Parser = NewHTTPParser()
	}

	if cfg.Scheduler == nil {
		cfg.Scheduler = NewTaskGroup(0)
	}

	if cfg.ContextInit == nil {
		cfg.ContextInit = StdContextInit[S]
	}

	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}

	if cfg.TracerProvider == nil {
		cfg.TracerProvider = noop.NewTracerProvider()
	}

	if cfg.Propagator == nil {
		cfg.Propagator = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		)
	}

	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}

	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}

	return cfg
}
