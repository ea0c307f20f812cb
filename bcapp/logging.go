package bcapp

import (
	"github.com/advdv/bconn"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger configured from the environment.
// Uses JSON encoding, BC_LOG_LEVEL controls the level (debug, info, warn, error).
func NewLogger(env Environment) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(env.logLevel())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

type zapLogger struct{ *zap.Logger }

func (l zapLogger) LogConnOpened(remote string) {
	l.Logger.Debug("connection opened", zap.String("remote", remote))
}

func (l zapLogger) LogConnClosed(remote string, err error) {
	if err != nil {
		l.Logger.Info("connection closed", zap.String("remote", remote), zap.Error(err))
		return
	}

	l.Logger.Debug("connection closed", zap.String("remote", remote))
}

func (l zapLogger) LogRequestParsed(remote string, req *bconn.Request) {
	if ce := l.Logger.Check(zap.DebugLevel, "request parsed"); ce != nil {
		ce.Write(
			zap.String("remote", remote),
			zap.String("method", req.Method),
			zap.String("target", req.Target),
			zap.Int("size", req.RawSize))
	}
}

func (l zapLogger) LogMalformedRequest(remote string, err *bconn.MalformedError) {
	l.Logger.Warn("malformed request",
		zap.String("remote", remote),
		zap.Int("code", int(err.Code)),
		zap.String("reason", err.Reason))
}

func (l zapLogger) LogDispatchFailure(remote string, err error) {
	l.Logger.Error("dispatch failed", zap.String("remote", remote), zap.Error(err))
}

func (l zapLogger) LogSendFailure(remote string, code bconn.Code, err error) {
	l.Logger.Error("failed to send response",
		zap.String("remote", remote),
		zap.Int("code", int(code)),
		zap.Error(err))
}

func newZapConnLogger(l *zap.Logger) bconn.Logger {
	return zapLogger{l.Named("bconn")}
}
