package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルに一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordGatewayCall_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGatewayCall("inventory", "isOwned", "success", 20*time.Millisecond)
	c.RecordGatewayCall("inventory", "isOwned", "success", 30*time.Millisecond)
	c.RecordGatewayCall("inventory", "isOwned", "network", time.Second)

	m := findMetric(t, reg, "gamstore_gateway_calls_total", map[string]string{
		"service": "inventory", "operation": "isOwned", "outcome": "success",
	})
	if m == nil {
		t.Fatal("gamstore_gateway_calls_total{outcome=success} not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("success calls = %v, want 2", got)
	}

	h := findMetric(t, reg, "gamstore_gateway_latency_seconds", map[string]string{"service": "inventory"})
	if h == nil {
		t.Fatal("gamstore_gateway_latency_seconds not found")
	}
	if got := h.GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("latency samples = %d, want 3", got)
	}
}

func TestIndicatorGauge_StartStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.IndicatorStarted("ownership")
	c.IndicatorStarted("ownership")
	c.IndicatorStopped("ownership")

	m := findMetric(t, reg, "gamstore_indicators_active", map[string]string{"kind": "ownership"})
	if m == nil {
		t.Fatal("gamstore_indicators_active not found")
	}
	if got := m.GetGauge().GetValue(); got != 1 {
		t.Errorf("active indicators = %v, want 1", got)
	}
}

func TestRecordPurchaseAndWishlist(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPurchase("initiated")
	c.RecordWishlistToggle("add", "success")
	c.RecordIndicatorCheck("wishlist", "error")
	c.RecordHTTPStatus(302)

	tests := []struct {
		name   string
		labels map[string]string
	}{
		{"gamstore_purchases_total", map[string]string{"outcome": "initiated"}},
		{"gamstore_wishlist_toggles_total", map[string]string{"action": "add", "outcome": "success"}},
		{"gamstore_indicator_checks_total", map[string]string{"kind": "wishlist", "outcome": "error"}},
		{"gamstore_http_responses_total", map[string]string{"status_code": "302"}},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, tt.name, tt.labels)
		if m == nil {
			t.Errorf("%s%v not found", tt.name, tt.labels)
			continue
		}
		if got := m.GetCounter().GetValue(); got != 1 {
			t.Errorf("%s = %v, want 1", tt.name, got)
		}
	}
}

func TestNop_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordGatewayCall("catalog", "games", "success", time.Millisecond)
	c.IndicatorStarted("ownership")
	c.IndicatorStopped("ownership")
	c.RecordPurchase("failed")
}
