package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	output  io.Writer
	service string
}

// Option настройка логгера
type Option func(*options)

// WithOutput задаёт поток вывода. По умолчанию stdout.
// CLI пишет логи в stderr, чтобы не смешивать их с результатом.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithService добавляет поле service ко всем записям
func WithService(name string) Option {
	return func(o *options) { o.service = name }
}

// New создаёт новый логгер
func New(level, format string, opts ...Option) (*zap.Logger, error) {
	o := options{output: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch format {
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(o.output), lvl)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	if o.service != "" {
		logger = logger.With(zap.String("service", o.service))
	}

	return logger, nil
}

// Must создаёт логгер или паникует
func Must(level, format string, opts ...Option) *zap.Logger {
	logger, err := New(level, format, opts...)
	if err != nil {
		panic(err)
	}
	return logger
}
