package httpapi

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/domain"
	cfgpkg "github.com/totcainc/knowledge-shadows/internal/infrastructure/config"
	obs "github.com/totcainc/knowledge-shadows/internal/infrastructure/observability"
)

func TestMonitorSubscribeDeliversBroadcasts(t *testing.T) {
	hub := NewMonitorHub()
	ch := hub.Subscribe()

	hub.Broadcast(MonitorEvent{Type: "status", ShadowID: "s1", Status: domain.StatusProcessing})

	select {
	case ev := <-ch:
		if ev.ShadowID != "s1" || ev.Status != domain.StatusProcessing {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	hub.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	// double unsubscribe must not panic
	hub.Unsubscribe(ch)
}

func TestStatusEventsDriveTransitionCounters(t *testing.T) {
	logger := zerolog.Nop()
	metrics := obs.NewMetrics()
	cfg := cfgpkg.Config{DevEmail: "dev@example.com", DevPassword: "devpassword", AccessTokenTTLSec: 60}
	deps := NewDeps(cfg, &logger, metrics, nil)
	t.Cleanup(deps.Close)

	deps.Monitor.Broadcast(MonitorEvent{Type: "status", ShadowID: "s1", Status: domain.StatusReadyForReview})
	deps.Monitor.Broadcast(MonitorEvent{Type: "status", ShadowID: "s2", Status: domain.StatusFailed})
	// non-status events are ignored by the counters
	deps.Monitor.Broadcast(MonitorEvent{Type: "ping"})

	// the counting subscriber runs on its own goroutine
	waitFor(t, func() bool {
		return counterValue(t, metrics, "knowledge_shadows_processing_runs_total", "outcome", "ok") == 1 &&
			counterValue(t, metrics, "knowledge_shadows_processing_runs_total", "outcome", "failed") == 1
	})
	if got := counterValue(t, metrics, "knowledge_shadows_status_transitions_total", "status", string(domain.StatusFailed)); got != 1 {
		t.Fatalf("failed transitions = %v, want 1", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("counters never reached the expected values")
}

// counterValue reads one labelled counter out of the private registry.
func counterValue(t *testing.T, metrics *obs.Metrics, name, labelName, labelValue string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == labelName && l.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
