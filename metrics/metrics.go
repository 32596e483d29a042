// Package metrics contains all application-logic metrics
package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	orderflowEvents  = metrics.NewCounter("orderflow_events_total")
	poolMatches      = metrics.NewCounter("orderflow_pool_matches_total")
	bundlesGenerated = metrics.NewCounter("bundles_generated_total")
	laddersSkipped   = metrics.NewCounter("ladder_rungs_skipped_total")
	journalErrors    = metrics.NewCounter("journal_publish_errors_total")
	storeErrors      = metrics.NewCounter("store_insert_errors_total")
)

func IncOrderflowEvent() {
	orderflowEvents.Inc()
}

func IncPoolMatch() {
	poolMatches.Inc()
}

func IncBundleGenerated() {
	bundlesGenerated.Inc()
}

func IncLadderRungSkipped() {
	laddersSkipped.Inc()
}

func IncJournalError() {
	journalErrors.Inc()
}

func IncStoreError() {
	storeErrors.Inc()
}

func IncRelaySubmitOK(relay string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`relay_submissions_total{relay=%q,result="ok"}`, relay)).Inc()
}

func IncRelaySubmitError(relay string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`relay_submissions_total{relay=%q,result="error"}`, relay)).Inc()
}
