// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kegworks/keg/pkg/formula"
)

const tracerName = "github.com/kegworks/keg/internal/engine"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// runStage runs fn inside a span named after the stage, records its metrics
// and wraps a failure in *StageError.
func (e *Engine) runStage(ctx context.Context, stage Stage, name formula.Name, fn func(context.Context) error) error {
	ctx, span := tracer().Start(ctx, "keg."+string(stage),
		trace.WithAttributes(
			attribute.String("keg.stage", string(stage)),
			attribute.String("formula.name", string(name)),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	e.metrics.ObserveStage(string(stage), time.Since(start), err)
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Formula: name, Err: err}
}
