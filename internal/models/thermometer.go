package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Thermometer binds a physical temperature sensor (identified by its hardware
// address) to the vehicle it is currently mounted on. Exactly one of TruckID
// and TowableID is set while the record is active. When the sensor moves to
// another vehicle, or the vehicle gets a different sensor, the record is
// archived and a new one is created; archived records are kept as history and
// never reused.
type Thermometer struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name             *string             `bson:"name,omitempty" json:"name,omitempty"`
	HardwareSensorID string              `bson:"hardware_sensor_id" json:"hardware_sensor_id"`
	TruckID          *primitive.ObjectID `bson:"truck_id,omitempty" json:"truck_id,omitempty"`
	TowableID        *primitive.ObjectID `bson:"towable_id,omitempty" json:"towable_id,omitempty"`
	ArchivedAt       *time.Time          `bson:"archived_at,omitempty" json:"archived_at,omitempty"`
	CreatedAt        time.Time           `bson:"created_at" json:"created_at"`
	ModifiedAt       time.Time           `bson:"modified_at" json:"modified_at"`
}

// Active reports whether the mount is current, i.e. the record has not been
// archived.
func (t *Thermometer) Active() bool {
	return t.ArchivedAt == nil
}
