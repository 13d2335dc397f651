package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Truck represents a powered fleet vehicle. The IMEI is the provisioned
// identifier of the telematics unit mounted on it; it stays nil until the
// unit is installed.
type Truck struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	IMEI        *string            `bson:"imei,omitempty" json:"imei,omitempty"`
	PlateNumber string             `bson:"plate_number" json:"plate_number"`
	VIN         string             `bson:"vin" json:"vin"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	ModifiedAt  time.Time          `bson:"modified_at" json:"modified_at"`
}

// Towable represents towed equipment (trailers, reefers) that carries its
// own telematics unit but no engine telemetry.
type Towable struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	IMEI        *string            `bson:"imei,omitempty" json:"imei,omitempty"`
	PlateNumber string             `bson:"plate_number" json:"plate_number"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	ModifiedAt  time.Time          `bson:"modified_at" json:"modified_at"`
}
