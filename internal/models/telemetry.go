package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Timestamps on all readings are integer epoch seconds as reported by the
// field device. Records are immutable once created; duplicates are keyed on
// (subject, timestamp).

// TemperatureReading is a single sample from a thermometer.
type TemperatureReading struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ThermometerID primitive.ObjectID `bson:"thermometer_id" json:"thermometer_id"`
	Value         float64            `bson:"value" json:"value"`
	Timestamp     int64              `bson:"timestamp" json:"timestamp"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// DriveState is the tachograph work state reported by a truck.
type DriveState string

const (
	DriveStateDrive   DriveState = "DRIVE"
	DriveStateWork    DriveState = "WORK"
	DriveStateRest    DriveState = "REST"
	DriveStateUnknown DriveState = "UNKNOWN"
)

// ParseDriveState maps a raw uplink state string to a known DriveState,
// falling back to UNKNOWN for anything unrecognized.
func ParseDriveState(s string) DriveState {
	switch DriveState(s) {
	case DriveStateDrive, DriveStateWork, DriveStateRest:
		return DriveState(s)
	default:
		return DriveStateUnknown
	}
}

// TruckDriveState is one entry in a truck's append-only drive state log.
// DriverID is resolved from DriverCardID at ingestion time and may stay nil
// when the card is absent or the driver service cannot resolve it.
type TruckDriveState struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TruckID      primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	State        DriveState         `bson:"state" json:"state"`
	Timestamp    int64              `bson:"timestamp" json:"timestamp"`
	DriverCardID *string            `bson:"driver_card_id,omitempty" json:"driver_card_id,omitempty"`
	DriverID     *string            `bson:"driver_id,omitempty" json:"driver_id,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// TruckOdometerReading is one entry in a truck's append-only odometer log.
type TruckOdometerReading struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TruckID         primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	Timestamp       int64              `bson:"timestamp" json:"timestamp"`
	OdometerReading int64              `bson:"odometer_reading" json:"odometer_reading"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}

// TruckLocation is one entry in a truck's append-only position log.
type TruckLocation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TruckID   primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	Timestamp int64              `bson:"timestamp" json:"timestamp"`
	Latitude  float64            `bson:"latitude" json:"latitude"`
	Longitude float64            `bson:"longitude" json:"longitude"`
	Heading   *float64           `bson:"heading,omitempty" json:"heading,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// TruckSpeed is one entry in a truck's append-only speed log.
type TruckSpeed struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TruckID   primitive.ObjectID `bson:"truck_id" json:"truck_id"`
	Timestamp int64              `bson:"timestamp" json:"timestamp"`
	Speed     float64            `bson:"speed" json:"speed"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
