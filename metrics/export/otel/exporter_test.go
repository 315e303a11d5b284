package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aircare/otpauth"
	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/guard"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot otpauth.MetricsSnapshot
	dropped  map[string]uint64
}

func (f *fakeSource) MetricsSnapshot() otpauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := otpauth.MetricsSnapshot{
		Counters:   make(map[otpauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[otpauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDroppedByType() map[string]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]uint64, len(f.dropped))
	for k, v := range f.dropped {
		out[k] = v
	}
	return out
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s has data %T", name, m.Data)
			}
			return sum
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Sum[int64]{}
}

func valueFor(t *testing.T, sum metricdata.Sum[int64], key, value string) int64 {
	t.Helper()
	for _, dp := range sum.DataPoints {
		if key == "" && dp.Attributes.Len() == 0 {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("no data point with %s=%s", key, value)
	return 0
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("otpauth-test")

	src := &fakeSource{
		snapshot: otpauth.MetricsSnapshot{
			Counters: map[otpauth.MetricID]uint64{
				otpauth.MetricLoginSuccess: 3,
			},
			Histograms: map[otpauth.MetricID][]uint64{
				otpauth.MetricBackendLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: map[string]uint64{otpauth.AuditGuardDenied: 1},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := valueFor(t, findSum(t, rm, "storefront_sign_ins_total"), "variant", "login"); got != 3 {
		t.Fatalf("login sign-ins = %d, want 3", got)
	}
	if got := valueFor(t, findSum(t, rm, "storefront_sign_ins_total"), "variant", "signup"); got != 0 {
		t.Fatalf("signup sign-ins = %d, want 0", got)
	}
	if got := valueFor(t, findSum(t, rm, "storefront_audit_dropped_total"), "event_type", "guard_denied"); got != 1 {
		t.Fatalf("guard_denied drops = %d, want 1", got)
	}
}

func TestExporterObservesLiveEngine(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	e, err := otpauth.New().WithBackend(rejectingBackend{}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	exp, err := NewOTelExporter(provider.Meter("storefront-test"), e)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	c, err := e.Client(otpauth.NewClientID())
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	if _, err := e.Authorize(context.Background(), c, guard.AdminOnly, "/admin/dashboard"); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := valueFor(t, findSum(t, rm, "storefront_guard_decisions_total"), "decision", "login_redirect"); got != 1 {
		t.Fatalf("login redirects = %d, want 1", got)
	}
	if got := valueFor(t, findSum(t, rm, "storefront_redirects_remembered_total"), "", ""); got != 1 {
		t.Fatalf("remembered = %d, want 1", got)
	}
}

func TestNewOTelExporterRejectsNilEngine(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	if _, err := NewOTelExporter(provider.Meter("x"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

type rejectingBackend struct{}

func (rejectingBackend) IssueLoginChallenge(context.Context, string) (backend.Challenge, error) {
	return backend.Challenge{}, backend.Reject("")
}

func (rejectingBackend) IssueSignupChallenge(context.Context, string, string, string) (backend.Challenge, error) {
	return backend.Challenge{}, backend.Reject("")
}

func (rejectingBackend) VerifyLoginChallenge(context.Context, string, string, string) (backend.Grant, error) {
	return backend.Grant{}, backend.Reject("")
}

func (rejectingBackend) VerifySignupChallenge(context.Context, string, string, string, backend.Details) (backend.Grant, error) {
	return backend.Grant{}, backend.Reject("")
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("otpauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("otpauth-test")

	src := &fakeSource{
		snapshot: otpauth.MetricsSnapshot{
			Counters: map[otpauth.MetricID]uint64{
				otpauth.MetricLoginSuccess: 1,
			},
			Histograms: map[otpauth.MetricID][]uint64{
				otpauth.MetricBackendLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[otpauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
