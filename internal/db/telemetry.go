package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetops/backoffice/internal/models"
)

// TemperatureReadingCollection defines the storage operations of the
// temperature pipeline. Find methods return (nil, nil) when nothing matches.
type TemperatureReadingCollection interface {
	InsertTemperatureReading(ctx context.Context, reading models.TemperatureReading) (*models.TemperatureReading, error)
	FindTemperatureReading(ctx context.Context, thermometerID primitive.ObjectID, timestamp int64) (*models.TemperatureReading, error)
}

// DriveStateCollection defines the storage operations of the drive-state
// pipeline.
type DriveStateCollection interface {
	InsertDriveState(ctx context.Context, state models.TruckDriveState) (*models.TruckDriveState, error)
	FindDriveState(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckDriveState, error)
	// FindLatestDriveStateAtOrBefore returns the most recent record with
	// timestamp <= the given one.
	FindLatestDriveStateAtOrBefore(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckDriveState, error)
}

// OdometerCollection defines the storage operations of the odometer pipeline.
type OdometerCollection interface {
	InsertOdometerReading(ctx context.Context, reading models.TruckOdometerReading) (*models.TruckOdometerReading, error)
	FindOdometerReading(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckOdometerReading, error)
	FindLatestOdometerAtOrBefore(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckOdometerReading, error)
}

// LocationCollection defines the storage operations of the location/speed
// pipeline.
type LocationCollection interface {
	InsertLocation(ctx context.Context, location models.TruckLocation) (*models.TruckLocation, error)
	FindLocation(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckLocation, error)
	InsertSpeed(ctx context.Context, speed models.TruckSpeed) (*models.TruckSpeed, error)
	FindSpeed(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckSpeed, error)
}

// MongoTemperatureReadingCollection implements TemperatureReadingCollection.
type MongoTemperatureReadingCollection struct {
	Collection *mongo.Collection
}

func (c *MongoTemperatureReadingCollection) InsertTemperatureReading(ctx context.Context, reading models.TemperatureReading) (*models.TemperatureReading, error) {
	reading.CreatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("insert temperature reading: %w", err)
	}
	reading.ID = res.InsertedID.(primitive.ObjectID)
	return &reading, nil
}

func (c *MongoTemperatureReadingCollection) FindTemperatureReading(ctx context.Context, thermometerID primitive.ObjectID, timestamp int64) (*models.TemperatureReading, error) {
	var reading models.TemperatureReading
	err := c.Collection.FindOne(ctx, bson.M{"thermometer_id": thermometerID, "timestamp": timestamp}).Decode(&reading)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find temperature reading: %w", err)
	}
	return &reading, nil
}

// MongoDriveStateCollection implements DriveStateCollection.
type MongoDriveStateCollection struct {
	Collection *mongo.Collection
}

func (c *MongoDriveStateCollection) InsertDriveState(ctx context.Context, state models.TruckDriveState) (*models.TruckDriveState, error) {
	state.CreatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("insert drive state: %w", err)
	}
	state.ID = res.InsertedID.(primitive.ObjectID)
	return &state, nil
}

func (c *MongoDriveStateCollection) FindDriveState(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckDriveState, error) {
	var state models.TruckDriveState
	err := c.Collection.FindOne(ctx, bson.M{"truck_id": truckID, "timestamp": timestamp}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find drive state: %w", err)
	}
	return &state, nil
}

func (c *MongoDriveStateCollection) FindLatestDriveStateAtOrBefore(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckDriveState, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var state models.TruckDriveState
	err := c.Collection.FindOne(ctx, bson.M{"truck_id": truckID, "timestamp": bson.M{"$lte": timestamp}}, opts).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest drive state: %w", err)
	}
	return &state, nil
}

// MongoOdometerCollection implements OdometerCollection.
type MongoOdometerCollection struct {
	Collection *mongo.Collection
}

func (c *MongoOdometerCollection) InsertOdometerReading(ctx context.Context, reading models.TruckOdometerReading) (*models.TruckOdometerReading, error) {
	reading.CreatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("insert odometer reading: %w", err)
	}
	reading.ID = res.InsertedID.(primitive.ObjectID)
	return &reading, nil
}

func (c *MongoOdometerCollection) FindOdometerReading(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckOdometerReading, error) {
	var reading models.TruckOdometerReading
	err := c.Collection.FindOne(ctx, bson.M{"truck_id": truckID, "timestamp": timestamp}).Decode(&reading)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find odometer reading: %w", err)
	}
	return &reading, nil
}

func (c *MongoOdometerCollection) FindLatestOdometerAtOrBefore(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckOdometerReading, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var reading models.TruckOdometerReading
	err := c.Collection.FindOne(ctx, bson.M{"truck_id": truckID, "timestamp": bson.M{"$lte": timestamp}}, opts).Decode(&reading)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest odometer reading: %w", err)
	}
	return &reading, nil
}

// MongoLocationCollection implements LocationCollection over the location and
// speed collections.
type MongoLocationCollection struct {
	Locations *mongo.Collection
	Speeds    *mongo.Collection
}

func (c *MongoLocationCollection) InsertLocation(ctx context.Context, location models.TruckLocation) (*models.TruckLocation, error) {
	location.CreatedAt = time.Now()
	res, err := c.Locations.InsertOne(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("insert location: %w", err)
	}
	location.ID = res.InsertedID.(primitive.ObjectID)
	return &location, nil
}

func (c *MongoLocationCollection) FindLocation(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckLocation, error) {
	var location models.TruckLocation
	err := c.Locations.FindOne(ctx, bson.M{"truck_id": truckID, "timestamp": timestamp}).Decode(&location)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find location: %w", err)
	}
	return &location, nil
}

func (c *MongoLocationCollection) InsertSpeed(ctx context.Context, speed models.TruckSpeed) (*models.TruckSpeed, error) {
	speed.CreatedAt = time.Now()
	res, err := c.Speeds.InsertOne(ctx, speed)
	if err != nil {
		return nil, fmt.Errorf("insert speed: %w", err)
	}
	speed.ID = res.InsertedID.(primitive.ObjectID)
	return &speed, nil
}

func (c *MongoLocationCollection) FindSpeed(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckSpeed, error) {
	var speed models.TruckSpeed
	err := c.Speeds.FindOne(ctx, bson.M{"truck_id": truckID, "timestamp": timestamp}).Decode(&speed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find speed: %w", err)
	}
	return &speed, nil
}
