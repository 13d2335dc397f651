package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the core entities.
const (
	CollTrucks              = "trucks"
	CollTowables            = "towables"
	CollThermometers        = "thermometers"
	CollTemperatureReadings = "temperature_readings"
	CollTruckDriveStates    = "truck_drive_states"
	CollTruckOdometer       = "truck_odometer_readings"
	CollTruckLocations      = "truck_locations"
	CollTruckSpeeds         = "truck_speeds"
	CollDeviceCredentials   = "device_credentials"
)

// ConnectMongo connects to MongoDB at the given URI.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the ingestion core relies on. The partial
// unique indexes on active thermometers back up the per-key serialization in
// the resolver: even if two callers race past the lookups, the second insert
// or un-archive fails instead of leaving two active rows. The timestamp
// indexes make the (subject, timestamp) duplicate checks unique at the
// storage level.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	thermometerIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "hardware_sensor_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"archived_at": bson.M{"$exists": false}}),
		},
		{
			Keys:    bson.D{{Key: "truck_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"archived_at": bson.M{"$exists": false}, "truck_id": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "towable_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"archived_at": bson.M{"$exists": false}, "towable_id": bson.M{"$exists": true}}),
		},
	}
	if _, err := database.Collection(CollThermometers).Indexes().CreateMany(ctx, thermometerIndexes); err != nil {
		return fmt.Errorf("thermometer indexes: %w", err)
	}

	unique := options.Index().SetUnique(true)
	perSubject := map[string]bson.D{
		CollTemperatureReadings: {{Key: "thermometer_id", Value: 1}, {Key: "timestamp", Value: 1}},
		CollTruckDriveStates:    {{Key: "truck_id", Value: 1}, {Key: "timestamp", Value: 1}},
		CollTruckOdometer:       {{Key: "truck_id", Value: 1}, {Key: "timestamp", Value: 1}},
		CollTruckLocations:      {{Key: "truck_id", Value: 1}, {Key: "timestamp", Value: 1}},
		CollTruckSpeeds:         {{Key: "truck_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}
	for coll, keys := range perSubject {
		if _, err := database.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: unique}); err != nil {
			return fmt.Errorf("%s index: %w", coll, err)
		}
	}

	imeiUnique := mongo.IndexModel{
		Keys:    bson.D{{Key: "imei", Value: 1}},
		Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"imei": bson.M{"$exists": true}}),
	}
	for _, coll := range []string{CollTrucks, CollTowables, CollDeviceCredentials} {
		if _, err := database.Collection(coll).Indexes().CreateOne(ctx, imeiUnique); err != nil {
			return fmt.Errorf("%s imei index: %w", coll, err)
		}
	}
	return nil
}
