package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	UplinksReceived      atomic.Int64
	RecordsCreated       atomic.Int64
	DuplicateUplinks     atomic.Int64
	SuppressedUplinks    atomic.Int64
	UnknownDeviceUplinks atomic.Int64
	DriverLookupFailures atomic.Int64
	WorkEventsPublished  atomic.Int64
	WorkEventDrops       atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "ingestion_uplinks_received_total %d\n", UplinksReceived.Load())
	fmt.Fprintf(w, "ingestion_records_created_total %d\n", RecordsCreated.Load())
	fmt.Fprintf(w, "ingestion_duplicate_uplinks_total %d\n", DuplicateUplinks.Load())
	fmt.Fprintf(w, "ingestion_suppressed_uplinks_total %d\n", SuppressedUplinks.Load())
	fmt.Fprintf(w, "ingestion_unknown_device_uplinks_total %d\n", UnknownDeviceUplinks.Load())
	fmt.Fprintf(w, "ingestion_driver_lookup_failures_total %d\n", DriverLookupFailures.Load())
	fmt.Fprintf(w, "ingestion_work_events_published_total %d\n", WorkEventsPublished.Load())
	fmt.Fprintf(w, "ingestion_work_event_drops_total %d\n", WorkEventDrops.Load())
}
