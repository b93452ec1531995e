package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordTraining(t *testing.T) {
	before := value(t, DefaultMetrics.TrainingRunsTotal.WithLabelValues("success"))

	RecordTraining("success", 0.2, 7)

	after := value(t, DefaultMetrics.TrainingRunsTotal.WithLabelValues("success"))
	if after != before+1 {
		t.Errorf("Expected success counter +1, got %v -> %v", before, after)
	}
	if got := value(t, DefaultMetrics.SnapshotRecords); got != 7 {
		t.Errorf("Expected snapshot records 7, got %v", got)
	}
}

func TestRecordSourceLoad_Error(t *testing.T) {
	before := value(t, DefaultMetrics.SourceLoadErrors.WithLabelValues("csv", "prices"))
	rowsBefore := value(t, DefaultMetrics.SourceRowsLoaded.WithLabelValues("csv", "prices"))

	RecordSourceLoad("csv", "prices", 10, 0.01, errors.New("boom"))

	if got := value(t, DefaultMetrics.SourceLoadErrors.WithLabelValues("csv", "prices")); got != before+1 {
		t.Errorf("Expected error counter +1, got %v", got)
	}
	if got := value(t, DefaultMetrics.SourceRowsLoaded.WithLabelValues("csv", "prices")); got != rowsBefore {
		t.Errorf("Expected rows unchanged on error, got %v", got)
	}
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 400: "4xx", 422: "4xx", 500: "5xx"}
	for code, want := range tests {
		if got := statusCode(code); got != want {
			t.Errorf("statusCode(%d) = %s, want %s", code, got, want)
		}
	}
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}
