package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fleetops/backoffice/internal/models"
)

var ErrThermometerNotFound = errors.New("thermometer not found")

// ThermometerCollection defines the storage operations the identity resolver
// needs. "Active" means archived_at is unset. Find methods return (nil, nil)
// when no document matches.
type ThermometerCollection interface {
	InsertThermometer(ctx context.Context, thermometer models.Thermometer) (*models.Thermometer, error)
	FindActiveByTruck(ctx context.Context, truckID primitive.ObjectID) (*models.Thermometer, error)
	FindActiveByTowable(ctx context.Context, towableID primitive.ObjectID) (*models.Thermometer, error)
	FindActiveBySensor(ctx context.Context, hardwareSensorID string) (*models.Thermometer, error)
	ArchiveThermometer(ctx context.Context, id primitive.ObjectID, at time.Time) error
	ListActive(ctx context.Context) ([]models.Thermometer, error)
	RenameThermometer(ctx context.Context, id primitive.ObjectID, name string) error
}

// MongoThermometerCollection implements ThermometerCollection for MongoDB.
type MongoThermometerCollection struct {
	Collection *mongo.Collection
}

func (c *MongoThermometerCollection) InsertThermometer(ctx context.Context, thermometer models.Thermometer) (*models.Thermometer, error) {
	now := time.Now()
	thermometer.CreatedAt = now
	thermometer.ModifiedAt = now
	res, err := c.Collection.InsertOne(ctx, thermometer)
	if err != nil {
		return nil, fmt.Errorf("insert thermometer: %w", err)
	}
	thermometer.ID = res.InsertedID.(primitive.ObjectID)
	return &thermometer, nil
}

func (c *MongoThermometerCollection) findActive(ctx context.Context, filter bson.M) (*models.Thermometer, error) {
	filter["archived_at"] = bson.M{"$exists": false}
	var thermometer models.Thermometer
	err := c.Collection.FindOne(ctx, filter).Decode(&thermometer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active thermometer: %w", err)
	}
	return &thermometer, nil
}

func (c *MongoThermometerCollection) FindActiveByTruck(ctx context.Context, truckID primitive.ObjectID) (*models.Thermometer, error) {
	return c.findActive(ctx, bson.M{"truck_id": truckID})
}

func (c *MongoThermometerCollection) FindActiveByTowable(ctx context.Context, towableID primitive.ObjectID) (*models.Thermometer, error) {
	return c.findActive(ctx, bson.M{"towable_id": towableID})
}

func (c *MongoThermometerCollection) FindActiveBySensor(ctx context.Context, hardwareSensorID string) (*models.Thermometer, error) {
	return c.findActive(ctx, bson.M{"hardware_sensor_id": hardwareSensorID})
}

func (c *MongoThermometerCollection) ArchiveThermometer(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"archived_at": at, "modified_at": at}},
	)
	if err != nil {
		return fmt.Errorf("archive thermometer: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrThermometerNotFound
	}
	return nil
}

func (c *MongoThermometerCollection) ListActive(ctx context.Context) ([]models.Thermometer, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{"archived_at": bson.M{"$exists": false}})
	if err != nil {
		return nil, fmt.Errorf("list active thermometers: %w", err)
	}
	defer cursor.Close(ctx)
	var thermometers []models.Thermometer
	if err := cursor.All(ctx, &thermometers); err != nil {
		return nil, fmt.Errorf("decode thermometers: %w", err)
	}
	return thermometers, nil
}

// RenameThermometer updates the display name only. Renaming stays allowed on
// archived records.
func (c *MongoThermometerCollection) RenameThermometer(ctx context.Context, id primitive.ObjectID, name string) error {
	res, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"name": name, "modified_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("rename thermometer: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrThermometerNotFound
	}
	return nil
}
