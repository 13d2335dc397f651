package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents back-office user roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Claims represents JWT claims for back-office users.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// DeviceCredential holds the bcrypt hash of the API key a field device
// authenticates uplinks with, keyed by the telematics unit's IMEI.
type DeviceCredential struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	IMEI      string             `bson:"imei" json:"imei"`
	KeyHash   string             `bson:"key_hash" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
