package observability

import (
	"context"
	"time"

	"github.com/annel0/demoparse/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName имя трассировщика парсера
const TracerName = "github.com/annel0/demoparse"

// InitTelemetry настраивает OTLP экспорт спанов разбора и устанавливает
// глобальный TracerProvider. Адрес коллектора берётся из стандартных
// переменных OTEL_EXPORTER_OTLP_* (по умолчанию localhost:4318).
// Возвращённую функцию shutdown нужно вызвать перед выходом, иначе
// последние спаны будут потеряны.
func InitTelemetry(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithProcessPID(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logging.Info("📡 OpenTelemetry: спаны разбора экспортируются по OTLP (service=%s)", serviceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// Tracer трассировщик из глобального провайдера.
// Без InitTelemetry провайдер пустой и спаны ничего не стоят.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
