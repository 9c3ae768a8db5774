package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"labeldesk/internal/dispatch"
	"labeldesk/internal/metrics"
)

func TestPrometheusCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(reg, "test")

	collector.Assigned(dispatch.OriginBacklog)
	collector.Assigned(dispatch.OriginBacklog)
	collector.Assigned(dispatch.OriginHandoff)
	collector.Submitted(true)
	collector.Skipped(dispatch.SkipQueued)
	collector.StoreMiss()
	collector.BacklogDepth(7)
	collector.Sessions(2)

	expected := `
# HELP test_dispatch_backlog_depth Items waiting in the shared backlog.
# TYPE test_dispatch_backlog_depth gauge
test_dispatch_backlog_depth 7
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_dispatch_backlog_depth"); err != nil {
		t.Fatalf("backlog gauge: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var assigned float64
	for _, family := range families {
		if family.GetName() != "test_dispatch_assignments_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "origin" && label.GetValue() == "backlog" {
					assigned = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if assigned != 2 {
		t.Fatalf("backlog assignments = %v, want 2", assigned)
	}
	if got, err := testutil.GatherAndCount(reg, "test_dispatch_store_misses_total"); err != nil || got != 1 {
		t.Fatalf("store misses series = %d, %v", got, err)
	}
}

func TestPrometheusCollectorDefaults(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheus(reg, "")
	collector.NoWork()
	if got, err := testutil.GatherAndCount(reg, "labeldesk_dispatch_no_work_total"); err != nil || got != 1 {
		t.Fatalf("no work series = %d, %v", got, err)
	}
}
