package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/streambind"

var (
	AttrTopic     = attribute.Key("messaging.destination.name")
	AttrPartition = attribute.Key("messaging.destination.partition.id")
	AttrOutcome   = attribute.Key("streambind.outcome")
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Telemetry holds all OpenTelemetry instruments for the streambind library
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Receiver metrics
	RecordsReceived metric.Int64Counter
	PollDuration    metric.Float64Histogram

	// Commit metrics
	CommitsIssued  metric.Int64Counter
	CommitDuration metric.Float64Histogram
	CommitRetries  metric.Int64Counter

	// Sender metrics
	RecordsSent  metric.Int64Counter
	SendDuration metric.Float64Histogram

	// Binding state
	PipelinesActive metric.Int64UpDownCounter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	recordsReceived, err := meter.Int64Counter(
		"messaging.consumer.messages",
		metric.WithDescription("Records received from the broker"),
	)
	if err != nil {
		return nil, err
	}

	pollDuration, err := meter.Float64Histogram(
		"streambind.poll.duration",
		metric.WithDescription("Time per Poll() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	commitsIssued, err := meter.Int64Counter(
		"streambind.commits",
		metric.WithDescription("Offset commit requests issued"),
	)
	if err != nil {
		return nil, err
	}

	commitDuration, err := meter.Float64Histogram(
		"streambind.commit.duration",
		metric.WithDescription("Time per offset commit request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	commitRetries, err := meter.Int64Counter(
		"streambind.commit.retries",
		metric.WithDescription("Commit attempts retried after a broker rejection"),
	)
	if err != nil {
		return nil, err
	}

	recordsSent, err := meter.Int64Counter(
		"messaging.producer.messages",
		metric.WithDescription("Records submitted to the broker producer"),
	)
	if err != nil {
		return nil, err
	}

	sendDuration, err := meter.Float64Histogram(
		"streambind.send.duration",
		metric.WithDescription("Time between send submission and broker acknowledgment"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pipelinesActive, err := meter.Int64UpDownCounter(
		"streambind.pipelines.active",
		metric.WithDescription("Receive pipelines currently running"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:          tracer,
		Propagator:      prop,
		RecordsReceived: recordsReceived,
		PollDuration:    pollDuration,
		CommitsIssued:   commitsIssued,
		CommitDuration:  commitDuration,
		CommitRetries:   commitRetries,
		RecordsSent:     recordsSent,
		SendDuration:    sendDuration,
		PipelinesActive: pipelinesActive,
	}, nil
}

// Noop returns a Telemetry where every instrument is a noop.
func Noop() *Telemetry {
	t, err := NewTelemetry(nil, nil, nil)
	if err != nil {
		// noop providers never fail instrument creation
		panic(err)
	}
	return t
}
