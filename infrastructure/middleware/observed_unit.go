package middleware

import (
	"context"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-tally/internal/domain"
	"github.com/ahrav/go-tally/internal/ports"
)

const tracerName = "go-tally/units"

var _ ports.Unit = (*ObservedUnit)(nil)

// ObservedUnit decorates a Unit with an OpenTelemetry span and Prometheus
// style metrics. Ballot totals and the count outcome are reported the first
// time they appear in the State, so wrapping every unit of a pipeline never
// counts the same ballots twice.
type ObservedUnit struct {
	next    ports.Unit
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// ObservedOption configures an ObservedUnit.
type ObservedOption func(*ObservedUnit)

// WithTracerProvider makes the unit start spans from tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) ObservedOption {
	return func(o *ObservedUnit) { o.tracer = tp.Tracer(tracerName) }
}

// NewObservedUnit wraps next. A nil metrics collector disables metrics but
// keeps tracing.
func NewObservedUnit(next ports.Unit, metrics ports.MetricsCollector, opts ...ObservedOption) *ObservedUnit {
	if next == nil {
		panic("observed unit: next unit is required")
	}
	o := &ObservedUnit{
		next:    next,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Name returns the wrapped unit's name.
func (o *ObservedUnit) Name() string { return o.next.Name() }

// Validate delegates to the wrapped unit.
func (o *ObservedUnit) Validate() error { return o.next.Validate() }

// Unwrap returns the decorated unit.
func (o *ObservedUnit) Unwrap() ports.Unit { return o.next }

// Execute runs the wrapped unit inside a span named after it.
func (o *ObservedUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	ctx, span := o.tracer.Start(ctx, "Unit.Execute",
		trace.WithAttributes(attribute.String("unit.name", o.next.Name())))
	defer span.End()

	labels := map[string]string{"unit": o.next.Name()}
	if ec, ok := state.GetExecutionContext(); ok {
		span.SetAttributes(
			attribute.String("tally.id", ec.TallyID),
			attribute.String("election.id", ec.ElectionID),
			attribute.String("tally.method", ec.Method),
		)
		labels["election"] = ec.ElectionID
	}
	if q, ok := domain.Get(state, domain.KeyQuestion); ok {
		span.SetAttributes(attribute.String("question.id", q.ID))
		labels["question"] = q.ID
	}

	start := time.Now()
	out, err := o.next.Execute(ctx, state)
	elapsed := time.Since(start)

	if o.metrics != nil {
		o.metrics.RecordLatency("unit_execution", elapsed, labels)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.count("unit_execution", withStatus(labels, "error"))
		return out, err
	}
	o.count("unit_execution", withStatus(labels, "success"))

	if _, seen := domain.Get(state, domain.KeyBallotTotals); !seen {
		if totals, ok := domain.Get(out, domain.KeyBallotTotals); ok {
			o.observeTotals(span, totals, labels)
		}
	}
	if _, seen := domain.Get(state, domain.KeyTally); !seen {
		if tally, ok := domain.Get(out, domain.KeyTally); ok && tally != nil {
			o.observeTally(span, tally, labels)
		}
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (o *ObservedUnit) observeTotals(span trace.Span, totals domain.Totals, labels map[string]string) {
	span.AddEvent("ballots.read", trace.WithAttributes(
		attribute.Int("valid", totals.ValidVotes),
		attribute.Int("blank", totals.BlankVotes),
		attribute.Int("null", totals.NullVotes),
	))
	if o.metrics == nil {
		return
	}
	for status, n := range map[string]int{
		"valid": totals.ValidVotes,
		"blank": totals.BlankVotes,
		"null":  totals.NullVotes,
	} {
		o.metrics.RecordCounter(MetricBallots, float64(n), withLabel(labels, "status", status))
	}
}

func (o *ObservedUnit) observeTally(span trace.Span, tally *domain.Tally, labels map[string]string) {
	span.SetAttributes(
		attribute.Float64("tally.quota", tally.Quota),
		attribute.Int("tally.rounds", tally.RoundCount),
		attribute.IntSlice("tally.winners", tally.Winners),
	)
	for _, d := range tally.Decisions {
		span.AddEvent("candidate."+string(d.Kind), trace.WithAttributes(
			attribute.Int("round", d.Round),
			attribute.Int("candidate", d.Candidate),
			attribute.Float64("transfer_value", d.TransferValue),
		))
		if o.metrics != nil {
			kind := withLabel(labels, "kind", string(d.Kind))
			o.metrics.RecordCounter(MetricDecisions, 1, kind)
			o.metrics.RecordHistogram(MetricTransferValues, d.TransferValue, kind)
		}
	}
	if o.metrics != nil {
		o.metrics.RecordGauge(MetricRounds, float64(tally.RoundCount), labels)
		o.metrics.RecordGauge(MetricQuota, tally.Quota, labels)
	}
}

func (o *ObservedUnit) count(operation string, labels map[string]string) {
	if o.metrics != nil {
		o.metrics.RecordCounter(operation, 1, labels)
	}
}

func withStatus(labels map[string]string, status string) map[string]string {
	return withLabel(labels, "status", status)
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := maps.Clone(labels)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[key] = value
	return out
}
