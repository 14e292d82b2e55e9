package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes here feed metrics, so they must stay low cardinality.
// Page URLs, asset URLs, file paths and error messages belong in logs
// (correlated through trace_id and job_url), never in attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := statusOf(err)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentHistoryOperation instruments history log operations.
func (t *Telemetry) InstrumentHistoryOperation(ctx context.Context, backend, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "history_"+operation, "history", fn)

	t.RecordHistoryOperation(backend, operation, statusOf(err), time.Since(start))

	if err != nil {
		t.RecordSystemError("history", operation)
	}

	return err
}

// InstrumentResolve instruments a page to asset link resolution.
func (t *Telemetry) InstrumentResolve(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "resolve", "resolver", fn)

	t.RecordResolution(statusOf(err))

	return err
}

// InstrumentJob instruments one pipeline run while it holds an admission slot.
func (t *Telemetry) InstrumentJob(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveJobs()
	defer t.DecrementActiveJobs()

	err := t.InstrumentOperation(ctx, "job", "pipeline", fn)

	t.RecordJob(statusOf(err), time.Since(start))

	return err
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
