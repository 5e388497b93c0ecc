package pipeline

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in whatever collector the
// process is configured to export to (none, by default — otel is a no-op
// until a TracerProvider is registered).
const tracerName = "mailgraph/extraction/pipeline"

var tracer = otel.Tracer(tracerName)

// startTransitionSpan opens a child span for one of spec.md §4.6's
// fetching/extracting/classifying/populating/resolving transitions,
// grounded on the teacher's observability.Tracer.StartStageSpan — the same
// one-span-per-stage shape, narrowed to this pipeline's own transitions
// instead of a generic "stage" attribute.
func startTransitionSpan(ctx context.Context, transition, documentID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline."+transition,
		trace.WithAttributes(
			attribute.String("mailgraph.transition", transition),
			attribute.String("mailgraph.document_id", documentID),
		),
	)
}

// endSpan closes span, marking it errored when err is non-nil.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}
