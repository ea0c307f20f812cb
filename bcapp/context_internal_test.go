package bcapp

import (
	"context"
	"net/http"
	"net/netip"
	"testing"

	"github.com/advdv/bconn"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type okResponder struct{}

func (okResponder) SendResponse(bconn.Response) error { return nil }
func (okResponder) SendError(bconn.Code) error        { return nil }
func (okResponder) RemoteAddr() netip.AddrPort        { return netip.AddrPort{} }

func TestLog_TraceCorrelated(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tp := sdktrace.NewTracerProvider()

	d := bconn.Wrap(bconn.DispatcherFunc[string](func(rc bconn.RequestContext[string], w bconn.Responder) error {
		Log(rc).Info("inside dispatch")
		Span(rc).AddEvent("dispatching")

		return w.SendResponse(bconn.NewResponse(http.StatusOK, nil, nil))
	}), withRequestDep[string](&requestDep{logger: zap.New(core)}))

	ctx, span := tp.Tracer("test").Start(context.Background(), "dispatch")
	defer span.End()

	rc, _ := bconn.StdContextInit(ctx, &bconn.Request{Path: "/"}, "shared")
	if err := d.Dispatch(rc, okResponder{}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	entries := logs.TakeAll()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("unexpected trace_id: %v", fields["trace_id"])
	}
	if fields["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("unexpected span_id: %v", fields["span_id"])
	}
}

func TestLog_WithoutMiddlewarePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected a panic without the request dependency middleware")
		}
	}()

	Log(context.Background())
}

func TestTraceFields_NoSpan(t *testing.T) {
	if fields := traceFields(context.Background()); fields != nil {
		t.Errorf("expected no fields, got %v", fields)
	}
}
