package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Findings.WithLabelValues("INC", "High").Inc()
	m.Findings.WithLabelValues("INC", "High").Inc()
	m.ProcessedBlock.Set(160)

	if got := testutil.ToFloat64(m.Findings.WithLabelValues("INC", "High")); got != 2 {
		t.Errorf("got %v findings", got)
	}
	if got := testutil.ToFloat64(m.ProcessedBlock); got != 160 {
		t.Errorf("got processed block %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Transactions.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "influence_monitor_transactions_total 1") {
		t.Errorf("counter missing from output")
	}
}
