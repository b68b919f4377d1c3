package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("curator", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	status := hc.CheckHealth()
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy")
	}
}

func TestHealthChecker_DegradedDoesNotFail(t *testing.T) {
	hc := NewHealthChecker("curator", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddCheck("kafka", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	status := hc.CheckHealth()
	if status.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %q", status.Status)
	}
}

func TestHealthChecker_Unhealthy(t *testing.T) {
	hc := NewHealthChecker("curator", "v1")
	hc.AddCheck("db", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	status := hc.CheckHealth()
	if status.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %q", status.Status)
	}
}

func TestHTTPServiceHealthCheck(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer s.Close()
	res := HTTPServiceHealthCheck("clip", s.URL)()
	if res.Status != StatusHealthy {
		t.Fatalf("expected healthy")
	}
}

func TestKafkaProducerHealthCheck_NilClient(t *testing.T) {
	res := KafkaProducerHealthCheck(nil)()
	if res.Status != StatusDegraded {
		t.Fatalf("expected degraded for nil client, got %q", res.Status)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"DATABASE_URL": "set", "LLM_API_KEY": ""})()
	if res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy when config missing, got %q", res.Status)
	}
	res = ConfigurationHealthCheck(map[string]string{"DATABASE_URL": "set"})()
	if res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", res.Status)
	}
}
