package bcapptest

import (
	"testing"
	"time"
)

// Env provides a chainable builder for setting [bcapp.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all [bcapp.BaseEnvironment] env vars to sensible test defaults.
//
// Defaults:
//   - BC_ADDR: "127.0.0.1:0" (an ephemeral port, read it back from the server)
//   - BC_SERVICE_NAME: "test"
//   - BC_OTEL_EXPORTER: "none"
//   - BC_METRICS_NAMESPACE: "test"
//
// Use the returned [Env] to override individual values:
//
//	bcapptest.SetBaseEnv(t).OnMalformed("close-connection").IdleTimeout(time.Second)
func SetBaseEnv(t testing.TB) *Env {
	t.Helper()
	t.Setenv("BC_ADDR", "127.0.0.1:0")
	t.Setenv("BC_SERVICE_NAME", "test")
	t.Setenv("BC_OTEL_EXPORTER", "none")
	t.Setenv("BC_METRICS_NAMESPACE", "test")
	return &Env{t: t}
}

// ServiceName overrides BC_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("BC_SERVICE_NAME", name)
	return e
}

// OnMalformed overrides BC_ON_MALFORMED.
func (e *Env) OnMalformed(policy string) *Env {
	e.t.Helper()
	e.t.Setenv("BC_ON_MALFORMED", policy)
	return e
}

// IdleTimeout overrides BC_IDLE_TIMEOUT.
func (e *Env) IdleTimeout(d time.Duration) *Env {
	e.t.Helper()
	e.t.Setenv("BC_IDLE_TIMEOUT", d.String())
	return e
}

// MaxBodyBytes overrides BC_MAX_BODY_BYTES.
func (e *Env) MaxBodyBytes(n string) *Env {
	e.t.Helper()
	e.t.Setenv("BC_MAX_BODY_BYTES", n)
	return e
}
