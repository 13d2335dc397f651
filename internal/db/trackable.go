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

// TruckCollection defines the interface for truck lookups used by the
// ingestion core. Lookups return (nil, nil) when no document matches.
type TruckCollection interface {
	InsertTruck(ctx context.Context, truck models.Truck) (*models.Truck, error)
	FindTruckByIMEI(ctx context.Context, imei string) (*models.Truck, error)
	FindTruckByID(ctx context.Context, id primitive.ObjectID) (*models.Truck, error)
}

// TowableCollection defines the interface for towable lookups used by the
// ingestion core.
type TowableCollection interface {
	InsertTowable(ctx context.Context, towable models.Towable) (*models.Towable, error)
	FindTowableByIMEI(ctx context.Context, imei string) (*models.Towable, error)
	FindTowableByID(ctx context.Context, id primitive.ObjectID) (*models.Towable, error)
}

// MongoTruckCollection implements TruckCollection for MongoDB.
type MongoTruckCollection struct {
	Collection *mongo.Collection
}

func (c *MongoTruckCollection) InsertTruck(ctx context.Context, truck models.Truck) (*models.Truck, error) {
	truck.CreatedAt = time.Now()
	truck.ModifiedAt = truck.CreatedAt
	res, err := c.Collection.InsertOne(ctx, truck)
	if err != nil {
		return nil, fmt.Errorf("insert truck: %w", err)
	}
	truck.ID = res.InsertedID.(primitive.ObjectID)
	return &truck, nil
}

func (c *MongoTruckCollection) FindTruckByIMEI(ctx context.Context, imei string) (*models.Truck, error) {
	var truck models.Truck
	err := c.Collection.FindOne(ctx, bson.M{"imei": imei}).Decode(&truck)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find truck by imei: %w", err)
	}
	return &truck, nil
}

func (c *MongoTruckCollection) FindTruckByID(ctx context.Context, id primitive.ObjectID) (*models.Truck, error) {
	var truck models.Truck
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&truck)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find truck by id: %w", err)
	}
	return &truck, nil
}

// MongoTowableCollection implements TowableCollection for MongoDB.
type MongoTowableCollection struct {
	Collection *mongo.Collection
}

func (c *MongoTowableCollection) InsertTowable(ctx context.Context, towable models.Towable) (*models.Towable, error) {
	towable.CreatedAt = time.Now()
	towable.ModifiedAt = towable.CreatedAt
	res, err := c.Collection.InsertOne(ctx, towable)
	if err != nil {
		return nil, fmt.Errorf("insert towable: %w", err)
	}
	towable.ID = res.InsertedID.(primitive.ObjectID)
	return &towable, nil
}

func (c *MongoTowableCollection) FindTowableByIMEI(ctx context.Context, imei string) (*models.Towable, error) {
	var towable models.Towable
	err := c.Collection.FindOne(ctx, bson.M{"imei": imei}).Decode(&towable)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find towable by imei: %w", err)
	}
	return &towable, nil
}

func (c *MongoTowableCollection) FindTowableByID(ctx context.Context, id primitive.ObjectID) (*models.Towable, error) {
	var towable models.Towable
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&towable)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find towable by id: %w", err)
	}
	return &towable, nil
}
