package observability

import (
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON stdout logger teed into the OpenTelemetry log
// bridge. Call it after SetupLoggingSDK so the bridge sees the provider.
func NewLogger(cfg Config) *zap.Logger {
	level := parseLevel(cfg.LogLevel)

	otelCore := otelzap.NewCore(ServiceName,
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		level,
	)

	return zap.New(zapcore.NewTee(otelCore, consoleCore),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", ServiceName)),
	)
}

// parseLevel falls back to info for empty or unknown names.
func parseLevel(name string) zapcore.Level {
	if l, err := zapcore.ParseLevel(name); err == nil && name != "" {
		return l
	}
	return zap.InfoLevel
}
