package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetops/backoffice/internal/models"
)

// DeviceCredentialCollection defines the storage operations for device API
// keys.
type DeviceCredentialCollection interface {
	UpsertDeviceCredential(ctx context.Context, credential models.DeviceCredential) error
	FindDeviceCredentialByIMEI(ctx context.Context, imei string) (*models.DeviceCredential, error)
}

// MongoDeviceCredentialCollection implements DeviceCredentialCollection.
type MongoDeviceCredentialCollection struct {
	Collection *mongo.Collection
}

func (c *MongoDeviceCredentialCollection) UpsertDeviceCredential(ctx context.Context, credential models.DeviceCredential) error {
	now := time.Now()
	_, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"imei": credential.IMEI},
		bson.M{
			"$set":         bson.M{"key_hash": credential.KeyHash, "updated_at": now},
			"$setOnInsert": bson.M{"imei": credential.IMEI, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert device credential: %w", err)
	}
	return nil
}

func (c *MongoDeviceCredentialCollection) FindDeviceCredentialByIMEI(ctx context.Context, imei string) (*models.DeviceCredential, error) {
	var credential models.DeviceCredential
	err := c.Collection.FindOne(ctx, bson.M{"imei": imei}).Decode(&credential)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find device credential: %w", err)
	}
	return &credential, nil
}
