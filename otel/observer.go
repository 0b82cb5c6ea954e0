// Package otel provides OpenTelemetry integration for tool dispatch,
// catalog refreshes, and provider health checks.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/crosswire-ai/crosswire/core"
)

// ToolObserver records dispatch and health signals into OpenTelemetry.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	refreshes   metric.Int64Counter
	health      metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		"crosswire.tool.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter(
		"crosswire.catalog.refreshes",
		metric.WithDescription("Number of tool catalog refreshes"),
	)
	if err != nil {
		return nil, err
	}
	health, err := meter.Int64Counter(
		"crosswire.provider.health.checks",
		metric.WithDescription("Number of provider health checks"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"crosswire.tool.latency",
		metric.WithDescription("Tool dispatch latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		refreshes:   refreshes,
		health:      health,
		latency:     latency,
	}, nil
}

// ObserveInvoke records one dispatch result.
func (o *ToolObserver) ObserveInvoke(observation core.InvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.String("origin", string(observation.Origin)),
		attribute.Bool("success", observation.Success),
	}
	if observation.ProviderID != "" {
		attrs = append(attrs, attribute.String("provider_id", observation.ProviderID))
	}
	if observation.Truncated {
		attrs = append(attrs, attribute.Bool("truncated", true))
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(time.Duration(observation.DurationMS)*time.Millisecond)/float64(time.Second), options)

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "tool.execute", trace.WithAttributes(attrs...))
	if !observation.Success {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ObserveRefresh records one catalog refresh.
func (o *ToolObserver) ObserveRefresh(observation core.RefreshObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("providers", observation.Providers),
		attribute.Int("tools", observation.Tools),
		attribute.Int("skipped", observation.Skipped),
	}
	o.refreshes.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// ObserveHealth records one provider health-check result.
func (o *ToolObserver) ObserveHealth(observation core.HealthObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider_id", observation.ProviderID),
		attribute.Bool("healthy", observation.Healthy),
		attribute.Int("failure_count", observation.Failures),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.health.Add(ctx, 1, options)

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "provider.health.check", trace.WithAttributes(attrs...))
	if !observation.Healthy {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ core.Observer = (*ToolObserver)(nil)
