// Package observability configures the process-wide slog logger.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Supported log formats.
const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatOTLP       = "otlp"
	FormatStdoutOTel = "stdout-otel"
)

// OTLP transport protocols, named as in OTEL_EXPORTER_OTLP_PROTOCOL.
const (
	ProtocolHTTP = "http/protobuf"
	ProtocolGRPC = "grpc"
)

// instrumentationName identifies log records emitted through the OpenTelemetry bridge.
const instrumentationName = "github.com/florianilch/otterbox"

// Options controls where log records go.
type Options struct {
	Level  slog.Level
	Format string
	// File, if set, receives text/json output with size-based rotation instead of stderr.
	File string
	// OTLPProtocol selects the OTLP transport. Empty falls back to
	// OTEL_EXPORTER_OTLP_LOGS_PROTOCOL, then OTEL_EXPORTER_OTLP_PROTOCOL, then http/protobuf.
	OTLPProtocol string
}

// Instrument installs the default slog logger. The returned function flushes and
// releases logging resources; it is safe to call when nothing needs releasing.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	handler, shutdown, err := newHandler(ctx, opts, os.Stderr)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(handler))
	return shutdown, nil
}

// newHandler builds the slog.Handler for opts. Text and JSON output go to w
// unless a log file is configured.
func newHandler(ctx context.Context, opts Options, w io.Writer) (slog.Handler, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch opts.Format {
	case "", FormatText, FormatJSON:
		out, closeOut, err := output(opts.File, w)
		if err != nil {
			return nil, nil, err
		}
		handlerOpts := &slog.HandlerOptions{Level: opts.Level}
		if opts.Format == FormatJSON {
			return slog.NewJSONHandler(out, handlerOpts), closeOut, nil
		}
		return slog.NewTextHandler(out, handlerOpts), closeOut, nil

	case FormatOTLP:
		exporter, err := otlpExporter(ctx, opts.OTLPProtocol)
		if err != nil {
			return nil, noop, fmt.Errorf("creating OTLP log exporter: %w", err)
		}
		return otelHandler(sdklog.NewBatchProcessor(exporter), opts.Level)

	case FormatStdoutOTel:
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, noop, fmt.Errorf("creating stdout log exporter: %w", err)
		}
		return otelHandler(sdklog.NewSimpleProcessor(exporter), opts.Level)

	default:
		return nil, noop, fmt.Errorf("unsupported log format: %s", opts.Format)
	}
}

// otlpExporter creates the OTLP log exporter for protocol. Endpoints and headers
// come from the standard OTEL_EXPORTER_OTLP_* environment variables.
func otlpExporter(ctx context.Context, protocol string) (sdklog.Exporter, error) {
	if protocol == "" {
		protocol = os.Getenv("OTEL_EXPORTER_OTLP_LOGS_PROTOCOL")
	}
	if protocol == "" {
		protocol = os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	}

	switch protocol {
	case "", ProtocolHTTP:
		return otlploghttp.New(ctx)
	case ProtocolGRPC:
		return otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s", protocol)
	}
}

// otelHandler bridges slog into an OpenTelemetry LoggerProvider that drops records
// below level.
func otelHandler(processor sdklog.Processor, level slog.Level) (slog.Handler, func(context.Context) error, error) {
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, severity(level))),
	)
	global.SetLoggerProvider(provider)

	handler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
	return handler, provider.Shutdown, nil
}

// severity maps a slog level onto the nearest OpenTelemetry minimum severity.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// output returns the writer for text/json logs: a rotating file if path is set, w otherwise.
func output(path string, w io.Writer) (io.Writer, func(context.Context) error, error) {
	if path == "" {
		return w, func(context.Context) error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		Compress:   true,
		LocalTime:  true,
	}
	return rotator, func(context.Context) error {
		if err := rotator.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return err
		}
		return nil
	}, nil
}
