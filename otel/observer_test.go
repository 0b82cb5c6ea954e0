package otel_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/crosswire-ai/crosswire/core"
	crosswireotel "github.com/crosswire-ai/crosswire/otel"
)

// newTestMeter returns a meter backed by a manual reader for collecting metrics in tests.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestToolObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	meter := mp.Meter("test-tool-observer")
	tracer := noop.NewTracerProvider().Tracer("test-tool-observer")

	observer, err := crosswireotel.NewToolObserver(meter, tracer)
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(core.InvokeObservation{
		ToolName:   "get_forecast",
		Origin:     core.OriginProvider,
		ProviderID: "weather",
		DurationMS: 120,
		Success:    false,
		ErrorCode:  core.ErrorCodeTimeout,
	})
	observer.ObserveRefresh(core.RefreshObservation{
		Providers:  2,
		Tools:      7,
		Skipped:    1,
		DurationMS: 3,
	})
	observer.ObserveHealth(core.HealthObservation{
		ProviderID: "weather",
		Healthy:    false,
		Failures:   3,
		DurationMS: 45,
		ErrorCode:  core.ErrorCodeTransportFailure,
	})

	rm := collectMetrics(t, reader)

	invocations := findMetric(rm, "crosswire.tool.invocations")
	if invocations == nil {
		t.Fatal("crosswire.tool.invocations metric not found")
	}
	if _, ok := invocations.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("crosswire.tool.invocations type = %T, want Sum[int64]", invocations.Data)
	}

	refreshes := findMetric(rm, "crosswire.catalog.refreshes")
	if refreshes == nil {
		t.Fatal("crosswire.catalog.refreshes metric not found")
	}
	if _, ok := refreshes.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("crosswire.catalog.refreshes type = %T, want Sum[int64]", refreshes.Data)
	}

	health := findMetric(rm, "crosswire.provider.health.checks")
	if health == nil {
		t.Fatal("crosswire.provider.health.checks metric not found")
	}
	if _, ok := health.Data.(metricdata.Sum[int64]); !ok {
		t.Fatalf("crosswire.provider.health.checks type = %T, want Sum[int64]", health.Data)
	}

	latency := findMetric(rm, "crosswire.tool.latency")
	if latency == nil {
		t.Fatal("crosswire.tool.latency metric not found")
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("crosswire.tool.latency type = %T, want Histogram[float64]", latency.Data)
	}
}

func TestToolObserverEmitsSpans(t *testing.T) {
	_, mp := newTestMeter()
	meter := mp.Meter("test-tool-observer-spans")

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := tp.Tracer("test-tool-observer-spans")

	observer, err := crosswireotel.NewToolObserver(meter, tracer)
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(core.InvokeObservation{
		ToolName: "greet",
		Origin:   core.OriginBuiltin,
		Success:  true,
	})
	observer.ObserveHealth(core.HealthObservation{
		ProviderID: "weather",
		Healthy:    true,
	})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "tool.execute" {
		t.Fatalf("span name = %q, want %q", spans[0].Name, "tool.execute")
	}
	if spans[1].Name != "provider.health.check" {
		t.Fatalf("span name = %q, want %q", spans[1].Name, "provider.health.check")
	}
}

func TestNilObserverIsSafe(t *testing.T) {
	var observer *crosswireotel.ToolObserver
	observer.ObserveInvoke(core.InvokeObservation{ToolName: "greet"})
	observer.ObserveRefresh(core.RefreshObservation{})
	observer.ObserveHealth(core.HealthObservation{ProviderID: "weather"})
}
