// Package metrics exposes the POS counters scraped from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SalesCommitted     prometheus.Counter
	SalesEdited        prometheus.Counter
	SalesDeleted       prometheus.Counter
	UnitsSold          prometheus.Counter
	OversellRejections *prometheus.CounterVec
	ReportsExported    *prometheus.CounterVec
}

// New registers the counters on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SalesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacare",
			Name:      "sales_committed_total",
			Help:      "Sale transactions committed at checkout.",
		}),
		SalesEdited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacare",
			Name:      "sales_edited_total",
			Help:      "Sale transactions reversed and recommitted with new lines.",
		}),
		SalesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacare",
			Name:      "sales_deleted_total",
			Help:      "Sale transactions reversed and deleted.",
		}),
		UnitsSold: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacare",
			Name:      "units_sold_total",
			Help:      "Units deducted from stock by committed sales.",
		}),
		OversellRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacare",
			Name:      "oversell_rejections_total",
			Help:      "Quantity changes rejected because they exceed stock on hand.",
		}, []string{"entry_point"}),
		ReportsExported: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacare",
			Name:      "reports_exported_total",
			Help:      "Reports rendered for download.",
		}, []string{"kind", "format"}),
	}
}

func (m *Metrics) SaleCommitted(units int) {
	if m == nil {
		return
	}
	m.SalesCommitted.Inc()
	m.UnitsSold.Add(float64(units))
}

func (m *Metrics) SaleEdited() {
	if m == nil {
		return
	}
	m.SalesEdited.Inc()
}

func (m *Metrics) SaleDeleted() {
	if m == nil {
		return
	}
	m.SalesDeleted.Inc()
}

func (m *Metrics) OversellRejected(entryPoint string) {
	if m == nil {
		return
	}
	m.OversellRejections.WithLabelValues(entryPoint).Inc()
}

func (m *Metrics) ReportExported(kind string, format string) {
	if m == nil {
		return
	}
	m.ReportsExported.WithLabelValues(kind, format).Inc()
}
