// Package identity maps physical temperature sensors to logical thermometer
// records, keeping the mount history valid as sensors move between vehicles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/db"
	"github.com/fleetops/backoffice/internal/locking"
	"github.com/fleetops/backoffice/internal/models"
)

// ErrInvalidArgument is returned when the caller passes neither or both of
// truck and towable. Callers resolve the owning vehicle before calling, so
// hitting this is a wiring bug.
var ErrInvalidArgument = errors.New("exactly one of truck and towable must be set")

// Resolver resolves a (hardware sensor id, owning device) pair to the active
// Thermometer record, archiving stale mounts along the way.
type Resolver struct {
	thermometers db.ThermometerCollection
	trucks       db.TruckCollection
	towables     db.TowableCollection
	locks        *locking.KeyedMutex
	now          func() time.Time
}

func NewResolver(thermometers db.ThermometerCollection, trucks db.TruckCollection, towables db.TowableCollection) *Resolver {
	return &Resolver{
		thermometers: thermometers,
		trucks:       trucks,
		towables:     towables,
		locks:        locking.NewKeyedMutex(),
		now:          time.Now,
	}
}

// ResolveThermometer returns the thermometer the incoming reading belongs to.
//
// The happy path is a single lookup: the target vehicle already carries an
// active thermometer with the incoming sensor id. Otherwise the sensor was
// remounted: any active record for the old pairing is archived and a fresh
// record is created. A sensor's archived records are never reactivated.
//
// The call is serialized per sensor id and per owning vehicle, so after it
// returns there is exactly one active thermometer for the sensor and exactly
// one for the vehicle, both being the returned record.
func (r *Resolver) ResolveThermometer(ctx context.Context, hardwareSensorID, deviceIdentifier string, truck *models.Truck, towable *models.Towable) (*models.Thermometer, error) {
	if (truck == nil) == (towable == nil) {
		return nil, ErrInvalidArgument
	}

	var ownerKey string
	if truck != nil {
		ownerKey = "truck:" + truck.ID.Hex()
	} else {
		ownerKey = "towable:" + towable.ID.Hex()
	}
	unlock := r.locks.LockAll("sensor:"+hardwareSensorID, ownerKey)
	defer unlock()

	// Step 1: the vehicle's current active thermometer.
	current, err := r.findActiveByOwner(ctx, truck, towable)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if current.HardwareSensorID == hardwareSensorID {
			return current, nil
		}
		// The vehicle carries a different physical sensor now.
		if err := r.archive(ctx, current, "sensor changed on vehicle"); err != nil {
			return nil, err
		}
	}

	// Step 2: the sensor may still be active under its previous vehicle.
	previous, err := r.thermometers.FindActiveBySensor(ctx, hardwareSensorID)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		ownerIMEI, err := r.ownerIMEI(ctx, previous)
		if err != nil {
			return nil, err
		}
		if ownerIMEI != nil && *ownerIMEI == deviceIdentifier {
			return previous, nil
		}
		// The sensor relocated to a new vehicle.
		if err := r.archive(ctx, previous, "sensor moved to another vehicle"); err != nil {
			return nil, err
		}
	}

	// Step 3: fresh mount.
	thermometer := models.Thermometer{HardwareSensorID: hardwareSensorID}
	if truck != nil {
		id := truck.ID
		thermometer.TruckID = &id
	} else {
		id := towable.ID
		thermometer.TowableID = &id
	}

	created, err := r.thermometers.InsertThermometer(ctx, thermometer)
	if err != nil {
		return nil, fmt.Errorf("create thermometer: %w", err)
	}
	log.WithFields(log.Fields{
		"thermometer_id":     created.ID.Hex(),
		"hardware_sensor_id": hardwareSensorID,
		"device_identifier":  deviceIdentifier,
	}).Info("Created thermometer for new sensor mount")
	return created, nil
}

func (r *Resolver) findActiveByOwner(ctx context.Context, truck *models.Truck, towable *models.Towable) (*models.Thermometer, error) {
	if truck != nil {
		return r.thermometers.FindActiveByTruck(ctx, truck.ID)
	}
	return r.thermometers.FindActiveByTowable(ctx, towable.ID)
}

// ownerIMEI looks up the device identifier of the vehicle a thermometer is
// bound to. Returns nil when the vehicle is gone or unprovisioned.
func (r *Resolver) ownerIMEI(ctx context.Context, thermometer *models.Thermometer) (*string, error) {
	if thermometer.TruckID != nil {
		truck, err := r.trucks.FindTruckByID(ctx, *thermometer.TruckID)
		if err != nil {
			return nil, err
		}
		if truck == nil {
			return nil, nil
		}
		return truck.IMEI, nil
	}
	if thermometer.TowableID != nil {
		towable, err := r.towables.FindTowableByID(ctx, *thermometer.TowableID)
		if err != nil {
			return nil, err
		}
		if towable == nil {
			return nil, nil
		}
		return towable.IMEI, nil
	}
	return nil, nil
}

func (r *Resolver) archive(ctx context.Context, thermometer *models.Thermometer, reason string) error {
	if err := r.thermometers.ArchiveThermometer(ctx, thermometer.ID, r.now()); err != nil {
		return fmt.Errorf("archive thermometer: %w", err)
	}
	log.WithFields(log.Fields{
		"thermometer_id":     thermometer.ID.Hex(),
		"hardware_sensor_id": thermometer.HardwareSensorID,
		"reason":             reason,
	}).Info("Archived thermometer")
	return nil
}
