package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHTTPMetrics_Middleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewHTTPMetrics(mp.Meter("test"))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/example/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/example/"+id, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var sum metricdata.Sum[int64]
	for _, met := range rm.ScopeMetrics[0].Metrics {
		if met.Name == "http.server.requests" {
			sum = met.Data.(metricdata.Sum[int64])
		}
	}
	require.Len(t, sum.DataPoints, 1, "ids must collapse into one route series")

	dp := sum.DataPoints[0]
	assert.Equal(t, int64(2), dp.Value)
	route, _ := dp.Attributes.Value(attribute.Key("route"))
	assert.Equal(t, "/api/example/{id}", route.AsString())
	status, _ := dp.Attributes.Value(attribute.Key("status"))
	assert.Equal(t, "404", status.AsString())
}

func TestTracer_Run(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tr := NewTracer("dev", true)
	err := tr.Run(context.Background(), "chain.invoke", func(context.Context) error {
		return errors.New("boom")
	}, attribute.String("model", "gpt-4o-mini"))
	assert.EqualError(t, err, "boom")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "chain.invoke", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("project", "dev"))
	assert.Len(t, spans[0].Events(), 1, "error should be recorded")

	disabled := NewTracer("dev", false)
	called := false
	require.NoError(t, disabled.Run(context.Background(), "noop", func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.Len(t, recorder.Ended(), 1, "disabled tracer records no spans")
}

func TestSetup(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(context.Background(), Options{ServiceName: "lambda-api", Version: "test", Writer: &buf})
	require.NoError(t, err)
	assert.NotNil(t, p.Meter("x"))
	require.NoError(t, p.Shutdown(context.Background()))
}
