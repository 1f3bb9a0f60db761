package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/annel0/voxelight/internal/logging"
)

// Options настраивает экспорт трассировок
type Options struct {
	ServiceName string
	Endpoint    string  // host:port OTLP HTTP; пусто - localhost:4318
	Insecure    bool    // Без TLS
	SampleRatio float64 // Доля сэмплируемых трасс; 0 - все
}

// InitTelemetry настраивает OTLP экспортер и устанавливает глобальный TracerProvider.
// Возвращает функцию shutdown, которую нужно вызвать при завершении приложения.
func InitTelemetry(ctx context.Context, opts Options) (func(context.Context) error, error) {
	var expOpts []otlptracehttp.Option
	if opts.Endpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		expOpts = append(expOpts, otlptracehttp.WithInsecure())
	}

	exp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := newTracerProvider(trace.WithBatcher(exp), trace.WithResource(res), sampler(opts.SampleRatio))

	otel.SetTracerProvider(tp)
	logging.Info("📡 OpenTelemetry инициализирован (OTLP → %s, service=%s)", endpointOrDefault(opts.Endpoint), opts.ServiceName)

	return shutdownFunc(tp), nil
}

// InitInMemory устанавливает TracerProvider с переданным SpanExporter.
// Используется в тестах и при отладке без коллектора.
func InitInMemory(exp trace.SpanExporter) (*trace.TracerProvider, func(context.Context) error) {
	tp := newTracerProvider(trace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	return tp, shutdownFunc(tp)
}

func newTracerProvider(opts ...trace.TracerProviderOption) *trace.TracerProvider {
	return trace.NewTracerProvider(opts...)
}

func sampler(ratio float64) trace.TracerProviderOption {
	if ratio <= 0 || ratio >= 1 {
		return trace.WithSampler(trace.AlwaysSample())
	}
	return trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio)))
}

func shutdownFunc(tp *trace.TracerProvider) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
}

func endpointOrDefault(endpoint string) string {
	if endpoint == "" {
		return "localhost:4318"
	}
	return endpoint
}
