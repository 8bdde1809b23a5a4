// SPDX-License-Identifier: MIT

package calc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("gsteval.calc")
	meter  = otel.Meter("gsteval.calc")
)

var (
	metricsOnce  sync.Once
	fillDuration metric.Float64Histogram
)

// initMetrics lazily creates the otel instruments. A failure leaves the
// instrument nil and is logged once.
func initMetrics(logger *slog.Logger) {
	metricsOnce.Do(func() {
		var err error
		fillDuration, err = meter.Float64Histogram("gsteval_calc_fill_duration_seconds",
			metric.WithDescription("Duration of bulk fill calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			logger.Error("calc: failed to initialize fill duration histogram", slog.String("error", err.Error()))
		}
	})
}

var registry = prometheus.NewRegistry()

// Numerical anomaly counters, labelled by calculator kind.
var (
	rescaleTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "gsteval_rescale_total",
		Help: "Intermediate products renormalized to avoid underflow",
	}, []string{"calculator"})

	nanProbTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "gsteval_nan_probabilities_total",
		Help: "Probabilities evaluated to NaN",
	}, []string{"calculator"})

	smallDerivTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "gsteval_small_deriv_total",
		Help: "Scaled derivative or Hessian caches found negligibly small",
	}, []string{"calculator", "order"})
)

// Registry returns the Prometheus registry holding the calc counters.
func Registry() *prometheus.Registry { return registry }

// startFill opens the span of one bulk call and returns a finisher that
// records the outcome and duration.
func startFill(ctx context.Context, logger *slog.Logger, kind Kind, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	initMetrics(logger)
	start := time.Now()
	ctx, span := tracer.Start(ctx, "calc."+name,
		trace.WithAttributes(append(attrs, attribute.String("calculator", kind.String()))...),
	)

	return ctx, func(err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		if fillDuration != nil {
			fillDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(
					attribute.String("calculator", kind.String()),
					attribute.String("call", name),
					attribute.Bool("error", err != nil),
				))
		}
	}
}
