// Package tracing wires OpenTelemetry for the registry. When disabled every
// tracer it hands out is a no-op.
package tracing

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/svcreg/internal/log"
)

// DefaultServiceName identifies svcreg in exported traces.
const DefaultServiceName = "svcreg"

// Exporter names accepted in Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterFile   = "file"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config configures the tracing subsystem.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Exporter is one of ExporterNone, ExporterFile, ExporterStdout or
	// ExporterOTLP. With "none" spans are created but not exported.
	Exporter     string  `mapstructure:"exporter" yaml:"exporter"`
	FilePath     string  `mapstructure:"file_path" yaml:"file_path"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" yaml:"sample_rate"` // <= 0 samples everything
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
}

// DefaultConfig returns tracing disabled with the file exporter preselected.
func DefaultConfig() Config {
	return Config{
		Exporter:     ExporterFile,
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
		ServiceName:  DefaultServiceName,
	}
}

// Exporters lists the accepted exporter names.
func Exporters() []string {
	return []string{ExporterNone, ExporterFile, ExporterStdout, ExporterOTLP}
}

type exporterFactory func(Config) (sdktrace.SpanExporter, error)

var exporterFactories = map[string]exporterFactory{
	ExporterFile: func(cfg Config) (sdktrace.SpanExporter, error) {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file_path required for file exporter")
		}
		return NewFileExporter(cfg.FilePath)
	},
	ExporterStdout: func(Config) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
	ExporterOTLP: func(cfg Config) (sdktrace.SpanExporter, error) {
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = DefaultConfig().OTLPEndpoint
		}
		return otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	},
}

// Provider owns the SDK tracer provider, if any.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a provider from cfg and installs it as the global
// OpenTelemetry provider. A disabled config yields no-op tracers.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: NoopTracer()}, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	}

	switch cfg.Exporter {
	case ExporterNone, "":
	default:
		factory, ok := exporterFactories[cfg.Exporter]
		if !ok {
			return nil, fmt.Errorf("unsupported exporter type %q (want one of %v)", cfg.Exporter, Exporters())
		}
		exp, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	sdk := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(sdk)

	log.Info(log.CatTrace, "tracing enabled", "exporter", cfg.Exporter, "sample_rate", cfg.SampleRate)
	return &Provider{sdk: sdk, tracer: sdk.Tracer(name)}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	if rate <= 0 || rate >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns the configured tracer. It is never nil.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.sdk != nil
}

// ForceFlush exports every finished span still queued.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// validExporter reports whether name is accepted in Config.Exporter.
func validExporter(name string) bool {
	return name == "" || slices.Contains(Exporters(), name)
}

// Validate checks cfg without building anything.
func (c Config) Validate() error {
	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", c.SampleRate)
	}
	if !validExporter(c.Exporter) {
		return fmt.Errorf("tracing.exporter must be one of %v, got %q", Exporters(), c.Exporter)
	}
	if !c.Enabled {
		return nil
	}
	if c.Exporter == ExporterFile && c.FilePath == "" {
		return fmt.Errorf("tracing.file_path is required when exporter is %q", ExporterFile)
	}
	if c.Exporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is %q", ExporterOTLP)
	}
	return nil
}
