package bcapp

import (
	"time"

	"github.com/advdv/bconn"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap/zapcore"
)

// supportedExporters lists the values accepted for BC_OTEL_EXPORTER.
var supportedExporters = []string{"stdout", "none"}

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	addr() string
	serviceName() string
	logLevel() zapcore.Level
	otelExporter() string
	metricsNamespace() string
	connSettings() ConnSettings
}

// ConnSettings are the per-connection settings read from the environment.
type ConnSettings struct {
	OnMalformed      bconn.OnMalformed `env:"BC_ON_MALFORMED" envDefault:"reset-buffer"`
	OrderedResponses bool              `env:"BC_ORDERED_RESPONSES" envDefault:"true"`
	IdleTimeout      time.Duration     `env:"BC_IDLE_TIMEOUT" envDefault:"2m"`
	DispatchTimeout  time.Duration     `env:"BC_DISPATCH_TIMEOUT" envDefault:"30s"`
	ReadSize         int               `env:"BC_READ_SIZE" envDefault:"4096"`
	MaxHeaderBytes   int               `env:"BC_MAX_HEADER_BYTES" envDefault:"32768"`
	MaxBodyBytes     int64             `env:"BC_MAX_BODY_BYTES" envDefault:"10485760"`
	MaxInflight      int               `env:"BC_MAX_INFLIGHT" envDefault:"0"`
	RateLimit        float64           `env:"BC_RATE_LIMIT" envDefault:"0"`
	RateBurst        int               `env:"BC_RATE_BURST" envDefault:"1"`
}

// BaseEnvironment contains the environment variables every bconn app reads.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Addr             string        `env:"BC_ADDR" envDefault:":8080"`
	ServiceName      string        `env:"BC_SERVICE_NAME,required,notEmpty"`
	LogLevel         zapcore.Level `env:"BC_LOG_LEVEL" envDefault:"info"`
	OtelExporter     string        `env:"BC_OTEL_EXPORTER" envDefault:"stdout"`
	MetricsNamespace string        `env:"BC_METRICS_NAMESPACE" envDefault:"bconn"`

	Conn ConnSettings
}

func (e BaseEnvironment) addr() string               { return e.Addr }
func (e BaseEnvironment) serviceName() string        { return e.ServiceName }
func (e BaseEnvironment) logLevel() zapcore.Level    { return e.LogLevel }
func (e BaseEnvironment) otelExporter() string       { return e.OtelExporter }
func (e BaseEnvironment) metricsNamespace() string   { return e.MetricsNamespace }
func (e BaseEnvironment) connSettings() ConnSettings { return e.Conn }

var _ Environment = BaseEnvironment{}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		if err := validateEnv(e); err != nil {
			return e, errors.Wrap(err, "invalid environment")
		}

		return e, nil
	}
}

func validateEnv(e Environment) error {
	if !lo.Contains(supportedExporters, e.otelExporter()) {
		return errors.Newf("unsupported BC_OTEL_EXPORTER: %q (supported: %v)", e.otelExporter(), supportedExporters)
	}

	cs := e.connSettings()

	var problems []string
	if cs.ReadSize <= 0 {
		problems = append(problems, "BC_READ_SIZE must be positive")
	}

	if cs.MaxHeaderBytes <= 0 {
		problems = append(problems, "BC_MAX_HEADER_BYTES must be positive")
	}

	if cs.MaxBodyBytes <= 0 {
		problems = append(problems, "BC_MAX_BODY_BYTES must be positive")
	}

	if cs.MaxInflight < 0 || cs.RateLimit < 0 || cs.IdleTimeout < 0 || cs.DispatchTimeout < 0 {
		problems = append(problems, "BC_MAX_INFLIGHT, BC_RATE_LIMIT and the timeouts must not be negative")
	}

	if len(problems) > 0 {
		return errors.Newf("%v", lo.Uniq(problems))
	}

	return nil
}
