package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginMetric         = promauto.NewSummary(prometheus.SummaryOpts{Name: "calculator_login", Help: "Logins"})
	projectCreateMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "calculator_project_create", Help: "Project creations"})
	projectUpdateMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "calculator_project_update", Help: "Project updates"})
	projectListMetric   = promauto.NewSummary(prometheus.SummaryOpts{Name: "calculator_project_list", Help: "Project listings"})
	extractMetric       = promauto.NewSummary(prometheus.SummaryOpts{Name: "calculator_invoice_extract", Help: "Invoice extractions"})

	sidecarFallbackMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calculator_extraction_sidecar_fallbacks",
		Help: "Number of extractions that fell back to local heuristics because the sidecar was unavailable.",
	})
	crmImportedDealsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calculator_crm_imported_deals",
		Help: "Number of CRM deals ingested as draft projects.",
	})
	expiredSessionsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "calculator_expired_sessions_evicted",
		Help: "Number of expired sessions removed by the background sweeper.",
	})
)
