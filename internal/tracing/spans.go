package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrRunID     = "ttr.run.id"
	AttrTag       = "ttr.tag"
	AttrCase      = "ttr.case"
	AttrCaseCount = "ttr.case.count"
	AttrPhase     = "ttr.phase"
	AttrDry       = "ttr.dry"

	AttrToolExecutable = "tool.executable"
	AttrToolArgs       = "tool.args"
	AttrToolExitCode   = "tool.exit_code"
	AttrArtifactPath   = "artifact.path"
	AttrArtifactMode   = "artifact.discovery"
)

// Span names.
const (
	SpanRun       = "ttr.run"
	SpanPrepare   = "ttr.prepare"
	SpanBuild     = "ttr.build"
	SpanConfigure = "ttr.configure"
	SpanStart     = "ttr.start"
	SpanBinaries  = "ttr.binaries"
	SpanTool      = "tool.invoke"
)

// Event names.
const (
	EventArtifactFound = "artifact.found"
	EventDryRun        = "dry_run"
)

// OrNoop returns t, or a no-op tracer when t is nil.
func OrNoop(t trace.Tracer) trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("noop")
	}
	return t
}

// Start opens an internal span with attributes.
func Start(ctx context.Context, t trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return OrNoop(t).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err on span, sets its status, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
