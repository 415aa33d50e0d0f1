package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry

	ShadowsCreatedTotal    prometheus.Counter
	StatusTransitionsTotal *prometheus.CounterVec
	UploadBytesTotal       prometheus.Counter
	UploadsTotal           *prometheus.CounterVec
	ProcessingRunsTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		ShadowsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knowledge_shadows",
			Name:      "shadows_created_total",
			Help:      "Total capture records created",
		}),
		StatusTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowledge_shadows",
			Name:      "status_transitions_total",
			Help:      "Total shadow status transitions",
		}, []string{"status"}),
		UploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knowledge_shadows",
			Name:      "upload_bytes_total",
			Help:      "Total bytes of uploaded recordings",
		}),
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowledge_shadows",
			Name:      "uploads_total",
			Help:      "Total upload attempts by outcome",
		}, []string{"outcome"}),
		ProcessingRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knowledge_shadows",
			Name:      "processing_runs_total",
			Help:      "Total processing runs by outcome",
		}, []string{"outcome"}),
	}
	r.MustRegister(m.ShadowsCreatedTotal, m.StatusTransitionsTotal, m.UploadBytesTotal, m.UploadsTotal, m.ProcessingRunsTotal)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
