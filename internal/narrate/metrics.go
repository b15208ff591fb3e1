package narrate

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	jobs        metric.Int64Counter
	chunks      metric.Int64Counter
	synthesized metric.Float64Counter
	jobDuration metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	jobs, err := meter.Int64Counter("narrate.jobs", metric.WithDescription("Narration jobs by final status"))
	if err != nil {
		return nil, err
	}
	chunks, err := meter.Int64Counter("narrate.chunks", metric.WithDescription("Text chunks produced"))
	if err != nil {
		return nil, err
	}
	synthesized, err := meter.Float64Counter("narrate.synthesized", metric.WithUnit("s"), metric.WithDescription("Seconds of speech synthesized"))
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("narrate.job.duration", metric.WithUnit("s"), metric.WithDescription("Wall time per narration job"))
	if err != nil {
		return nil, err
	}
	return &metrics{jobs: jobs, chunks: chunks, synthesized: synthesized, jobDuration: jobDuration}, nil
}

func metricStatus(status string) metric.AddOption {
	return metric.WithAttributes(attribute.String("status", status))
}
