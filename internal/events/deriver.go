package events

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/models"
)

// Enqueuer is the bus-facing half the deriver needs.
type Enqueuer interface {
	Enqueue(event models.WorkEvent) bool
}

// Deriver turns genuinely new drive-state records into work events. It runs
// only after the ingestor persisted a record, never on duplicates or
// suppressed uplinks.
type Deriver struct {
	bus Enqueuer
}

func NewDeriver(bus Enqueuer) *Deriver {
	return &Deriver{bus: bus}
}

// DeriveAndPublish maps the record's state into the work-event taxonomy and
// enqueues it. A record without a resolved driver or timestamp is skipped
// with a warning; publication problems never surface to the ingestion
// caller.
func (d *Deriver) DeriveAndPublish(record *models.TruckDriveState) {
	if record.DriverID == nil || *record.DriverID == "" {
		log.WithFields(log.Fields{
			"truck_id":  record.TruckID.Hex(),
			"timestamp": record.Timestamp,
			"state":     record.State,
		}).Warn("Drive state has no resolved driver, skipping work event")
		return
	}
	if record.Timestamp == 0 {
		log.WithFields(log.Fields{
			"truck_id": record.TruckID.Hex(),
			"state":    record.State,
		}).Warn("Drive state has no timestamp, skipping work event")
		return
	}

	d.bus.Enqueue(models.WorkEvent{
		ID:            uuid.NewString(),
		DriverID:      *record.DriverID,
		WorkEventType: models.WorkEventTypeForState(record.State),
		Time:          time.Unix(record.Timestamp, 0).UTC(),
	})
}
