package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dailycompanion/companion/internal/logging"
	"github.com/dailycompanion/companion/internal/sharedplan"
)

func newTestMetrics(t *testing.T) (*Metrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return NewMetrics(mp.Meter(instrumentationName), logging.NewNop()), reader
}

func sumOf(t *testing.T, reader *metric.ManualReader, name string) (int64, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, true
			}
			total := int64(0)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

func TestMetrics_RecordInvocation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInvocation(ctx, "plan_get", 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, "plan_get", 50*time.Millisecond, &sharedplan.Error{Kind: sharedplan.ErrForbidden, Msg: "no"})

	total, ok := sumOf(t, reader, "companion.mcp.tool.invocations_total")
	require.True(t, ok, "invocations counter not found")
	assert.Equal(t, int64(2), total)

	errs, ok := sumOf(t, reader, "companion.mcp.tool.errors_total")
	require.True(t, ok, "errors counter not found")
	assert.Equal(t, int64(1), errs)
}

func TestMetrics_ActiveRequests(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.IncrementActive(ctx, "task_add")
	m.IncrementActive(ctx, "task_add")
	m.DecrementActive(ctx, "task_add")

	active, ok := sumOf(t, reader, "companion.mcp.tool.active_requests")
	require.True(t, ok, "active_requests metric not found")
	assert.Equal(t, int64(1), active)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"validation", &sharedplan.Error{Kind: sharedplan.ErrValidation, Msg: "title is required"}, "validation_error"},
		{"not found", fmt.Errorf("loading: %w", sharedplan.ErrNotFound), "not_found"},
		{"forbidden", &sharedplan.Error{Kind: sharedplan.ErrForbidden, Msg: "nope"}, "forbidden"},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"generic error", errors.New("disk I/O error"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorizeError(tt.err))
		})
	}
}
