package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zulandar/dripyard/internal/proxypool"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("success", 10)
	m.WorkerStarted()
	m.WorkerStopped()
	m.ObserveWithdrawal("completed")
	m.ObserveSession("stopped")
}

func TestHandler_ExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveAttempt("success", 10)
	m.ObserveAttempt("transient_failure", 0)
	m.WorkerStarted()
	m.ObserveWithdrawal("pending")

	pool := proxypool.New(proxypool.Options{})
	if _, err := pool.Add("1.1.1.1:80", "2.2.2.2:80"); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Checkout(); err != nil {
		t.Fatal(err)
	}
	RegisterPool(reg, pool)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`dripyard_claim_attempts_total{outcome="success"} 1`,
		`dripyard_claim_attempts_total{outcome="transient_failure"} 1`,
		`dripyard_earned_satoshis_total 10`,
		`dripyard_workers_live 1`,
		`dripyard_withdrawals_total{status="pending"} 1`,
		`dripyard_proxies{status="healthy"} 1`,
		`dripyard_proxies{status="in_use"} 1`,
		`dripyard_proxies{status="unhealthy"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewRegistry_HasRuntimeCollectors(t *testing.T) {
	reg := NewRegistry()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range mfs {
		if strings.HasPrefix(mf.GetName(), "go_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected go_* runtime metrics")
	}
}
