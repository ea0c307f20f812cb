// Package bcapptest provides test helpers for bcapp applications.
//
// It constructs the identical DI graph as [bcapp.NewApp] but uses
// [fxtest.App] which fails the test immediately on DI errors.
//
// Example:
//
//	bcapptest.SetBaseEnv(t)
//	var srv *bconn.Server[*Shared]
//	app := bcapptest.New[bcapp.BaseEnvironment, *Shared](t, NewDispatcher, bcapp.WithFx(fx.Populate(&srv)))
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
package bcapptest

import (
	"testing"

	"github.com/advdv/bconn/bcapp"
	"go.uber.org/fx/fxtest"
)

// App embeds *fxtest.App for testing bcapp applications.
type App struct {
	*fxtest.App
}

// New creates a test app with the same DI graph as [bcapp.NewApp].
func New[E bcapp.Environment, S any](t testing.TB, dispatcher any, opts ...bcapp.Option) *App {
	return &App{App: fxtest.New(t, bcapp.FxOptions[E, S](dispatcher, opts...)...)}
}
