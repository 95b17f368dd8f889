package job

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in whatever trace backend
// the host application configures via otel.SetTracerProvider.
const tracerName = "kiara.job"

// startSpan opens a dispatch span for moduleType, grounded on
// module.TraceStartStep's otel.GetTracerProvider().Tracer(...) pattern
// (_examples/GoCodeAlone-workflow/module/pipeline_step_tracing.go).
func startSpan(ctx context.Context, moduleType string) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(tracerName)
	return tracer.Start(ctx, "job.execute", trace.WithAttributes(
		attribute.String("kiara.module_type", moduleType),
	))
}
