// Package ingest accepts telemetry uplinks from field devices and decides
// per signal whether an uplink carries new information. Devices resend the
// last known sample on every uplink cycle, so exact duplicates and unchanged
// values are the common case, not an error.
package ingest

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/db"
	"github.com/fleetops/backoffice/internal/driver"
	"github.com/fleetops/backoffice/internal/locking"
	"github.com/fleetops/backoffice/internal/metrics"
	"github.com/fleetops/backoffice/internal/models"
)

// Disposition reports what happened to an uplink.
type Disposition int

const (
	// Created means a new record was persisted.
	Created Disposition = iota
	// Duplicate means a record for the same (subject, timestamp) already
	// existed; the uplink is a retransmission and nothing was written.
	Duplicate
	// Suppressed means the payload carried no new information compared to
	// the latest prior record; nothing was written.
	Suppressed
)

func (d Disposition) String() string {
	switch d {
	case Created:
		return "created"
	case Duplicate:
		return "duplicate"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// EventDeriver is notified for every genuinely new drive-state record.
type EventDeriver interface {
	DeriveAndPublish(record *models.TruckDriveState)
}

// Service runs the four ingestion pipelines. Each call is serialized per
// (signal, subject) key because the duplicate and no-change checks are
// read-then-write.
type Service struct {
	temperatures db.TemperatureReadingCollection
	driveStates  db.DriveStateCollection
	odometers    db.OdometerCollection
	locations    db.LocationCollection
	drivers      driver.Resolver
	deriver      EventDeriver
	locks        *locking.KeyedMutex
}

func NewService(
	temperatures db.TemperatureReadingCollection,
	driveStates db.DriveStateCollection,
	odometers db.OdometerCollection,
	locations db.LocationCollection,
	drivers driver.Resolver,
	deriver EventDeriver,
) *Service {
	return &Service{
		temperatures: temperatures,
		driveStates:  driveStates,
		odometers:    odometers,
		locations:    locations,
		drivers:      drivers,
		deriver:      deriver,
		locks:        locking.NewKeyedMutex(),
	}
}

// IngestTemperature records a thermometer sample. An exact duplicate is
// accepted as a no-op and the existing record returned.
func (s *Service) IngestTemperature(ctx context.Context, thermometer *models.Thermometer, timestamp int64, value float64) (*models.TemperatureReading, Disposition, error) {
	unlock := s.locks.Lock("temperature:" + thermometer.ID.Hex())
	defer unlock()

	existing, err := s.temperatures.FindTemperatureReading(ctx, thermometer.ID, timestamp)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil {
		metrics.DuplicateUplinks.Add(1)
		return existing, Duplicate, nil
	}

	created, err := s.temperatures.InsertTemperatureReading(ctx, models.TemperatureReading{
		ThermometerID: thermometer.ID,
		Value:         value,
		Timestamp:     timestamp,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("persist temperature reading: %w", err)
	}
	metrics.RecordsCreated.Add(1)
	return created, Created, nil
}

// IngestOdometer records a truck odometer sample, suppressing retransmissions
// of a value that has not advanced.
func (s *Service) IngestOdometer(ctx context.Context, truck *models.Truck, timestamp int64, reading int64) (*models.TruckOdometerReading, Disposition, error) {
	unlock := s.locks.Lock("odometer:" + truck.ID.Hex())
	defer unlock()

	existing, err := s.odometers.FindOdometerReading(ctx, truck.ID, timestamp)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil {
		metrics.DuplicateUplinks.Add(1)
		return existing, Duplicate, nil
	}

	prior, err := s.odometers.FindLatestOdometerAtOrBefore(ctx, truck.ID, timestamp)
	if err != nil {
		return nil, 0, err
	}
	if prior != nil && prior.Timestamp < timestamp && prior.OdometerReading == reading {
		metrics.SuppressedUplinks.Add(1)
		return nil, Suppressed, nil
	}

	created, err := s.odometers.InsertOdometerReading(ctx, models.TruckOdometerReading{
		TruckID:         truck.ID,
		Timestamp:       timestamp,
		OdometerReading: reading,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("persist odometer reading: %w", err)
	}
	metrics.RecordsCreated.Add(1)
	return created, Created, nil
}

// IngestDriveState records a tachograph state transition. Exact duplicates
// return the stored record untouched; an unchanged state from the same card
// and resolved driver is suppressed. Only a genuinely new record triggers
// work-event derivation.
func (s *Service) IngestDriveState(ctx context.Context, truck *models.Truck, timestamp int64, state models.DriveState, driverCardID *string) (*models.TruckDriveState, Disposition, error) {
	unlock := s.locks.Lock("drivestate:" + truck.ID.Hex())
	defer unlock()

	existing, err := s.driveStates.FindDriveState(ctx, truck.ID, timestamp)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil {
		metrics.DuplicateUplinks.Add(1)
		return existing, Duplicate, nil
	}

	driverID := s.resolveDriver(ctx, truck, driverCardID)

	prior, err := s.driveStates.FindLatestDriveStateAtOrBefore(ctx, truck.ID, timestamp)
	if err != nil {
		return nil, 0, err
	}
	if prior != nil && prior.Timestamp < timestamp &&
		prior.State == state &&
		equalStringPtr(prior.DriverCardID, driverCardID) &&
		equalStringPtr(prior.DriverID, driverID) {
		metrics.SuppressedUplinks.Add(1)
		return nil, Suppressed, nil
	}

	created, err := s.driveStates.InsertDriveState(ctx, models.TruckDriveState{
		TruckID:      truck.ID,
		State:        state,
		Timestamp:    timestamp,
		DriverCardID: driverCardID,
		DriverID:     driverID,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("persist drive state: %w", err)
	}
	metrics.RecordsCreated.Add(1)

	if s.deriver != nil {
		s.deriver.DeriveAndPublish(created)
	}
	return created, Created, nil
}

// LocationPayload is the position/speed half of an uplink.
type LocationPayload struct {
	Latitude  float64
	Longitude float64
	Heading   *float64
	Speed     *float64
}

// IngestLocation records a truck position and, when present, its speed.
// Duplicates for either log are silently accepted.
func (s *Service) IngestLocation(ctx context.Context, truck *models.Truck, timestamp int64, payload LocationPayload) (Disposition, error) {
	unlock := s.locks.Lock("location:" + truck.ID.Hex())
	defer unlock()

	disposition := Duplicate

	existing, err := s.locations.FindLocation(ctx, truck.ID, timestamp)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		if _, err := s.locations.InsertLocation(ctx, models.TruckLocation{
			TruckID:   truck.ID,
			Timestamp: timestamp,
			Latitude:  payload.Latitude,
			Longitude: payload.Longitude,
			Heading:   payload.Heading,
		}); err != nil {
			return 0, fmt.Errorf("persist location: %w", err)
		}
		metrics.RecordsCreated.Add(1)
		disposition = Created
	}

	if payload.Speed != nil {
		existingSpeed, err := s.locations.FindSpeed(ctx, truck.ID, timestamp)
		if err != nil {
			return 0, err
		}
		if existingSpeed == nil {
			if _, err := s.locations.InsertSpeed(ctx, models.TruckSpeed{
				TruckID:   truck.ID,
				Timestamp: timestamp,
				Speed:     *payload.Speed,
			}); err != nil {
				return 0, fmt.Errorf("persist speed: %w", err)
			}
			metrics.RecordsCreated.Add(1)
			disposition = Created
		}
	}

	if disposition == Duplicate {
		metrics.DuplicateUplinks.Add(1)
	}
	return disposition, nil
}

// resolveDriver performs the live driver-card lookup. Any failure resolves
// to "no driver": a telemetry reading must not be lost because the identity
// service is down.
func (s *Service) resolveDriver(ctx context.Context, truck *models.Truck, driverCardID *string) *string {
	if driverCardID == nil || *driverCardID == "" {
		return nil
	}
	resolved, err := s.drivers.ResolveDriver(ctx, *driverCardID)
	if err != nil {
		metrics.DriverLookupFailures.Add(1)
		log.WithError(err).WithFields(log.Fields{
			"truck_id":       truck.ID.Hex(),
			"driver_card_id": *driverCardID,
		}).Warn("Driver lookup failed, ingesting without driver")
		return nil
	}
	if resolved == nil {
		return nil
	}
	id := resolved.ID
	return &id
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
