package ingest

import (
	"context"
	"errors"

	"github.com/fleetops/backoffice/internal/db"
	"github.com/fleetops/backoffice/internal/identity"
	"github.com/fleetops/backoffice/internal/metrics"
	"github.com/fleetops/backoffice/internal/models"
)

// ErrUnknownDevice is returned when no truck or towable is provisioned with
// the uplink's device identifier. The transport layer rejects the
// submission; the device is misconfigured or not yet provisioned.
var ErrUnknownDevice = errors.New("unknown device identifier")

// TemperatureUplink is a thermometer sample as sent by a field device.
type TemperatureUplink struct {
	DeviceIdentifier string  `json:"deviceIdentifier"`
	HardwareSensorID string  `json:"hardwareSensorId"`
	Timestamp        int64   `json:"timestamp"`
	Value            float64 `json:"value"`
}

// OdometerUplink is a truck odometer sample.
type OdometerUplink struct {
	DeviceIdentifier string `json:"deviceIdentifier"`
	Timestamp        int64  `json:"timestamp"`
	OdometerReading  int64  `json:"odometerReading"`
}

// DriveStateUplink is a tachograph state sample.
type DriveStateUplink struct {
	DeviceIdentifier string  `json:"deviceIdentifier"`
	Timestamp        int64   `json:"timestamp"`
	State            string  `json:"state"`
	DriverCardID     *string `json:"driverCardId,omitempty"`
}

// LocationUplink is a position/speed sample.
type LocationUplink struct {
	DeviceIdentifier string   `json:"deviceIdentifier"`
	Timestamp        int64    `json:"timestamp"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
}

// Gateway resolves the uplink's device identifier to a vehicle and hands the
// payload to the matching pipeline. Both the HTTP handlers and the MQTT
// bridge go through it.
type Gateway struct {
	trucks   db.TruckCollection
	towables db.TowableCollection
	resolver *identity.Resolver
	service  *Service
}

func NewGateway(trucks db.TruckCollection, towables db.TowableCollection, resolver *identity.Resolver, service *Service) *Gateway {
	return &Gateway{trucks: trucks, towables: towables, resolver: resolver, service: service}
}

// HandleTemperature resolves the owning vehicle and thermometer, then
// ingests the sample.
func (g *Gateway) HandleTemperature(ctx context.Context, uplink TemperatureUplink) (*models.TemperatureReading, Disposition, error) {
	metrics.UplinksReceived.Add(1)

	truck, towable, err := g.resolveDevice(ctx, uplink.DeviceIdentifier)
	if err != nil {
		return nil, 0, err
	}

	thermometer, err := g.resolver.ResolveThermometer(ctx, uplink.HardwareSensorID, uplink.DeviceIdentifier, truck, towable)
	if err != nil {
		return nil, 0, err
	}
	return g.service.IngestTemperature(ctx, thermometer, uplink.Timestamp, uplink.Value)
}

func (g *Gateway) HandleOdometer(ctx context.Context, uplink OdometerUplink) (*models.TruckOdometerReading, Disposition, error) {
	metrics.UplinksReceived.Add(1)

	truck, err := g.resolveTruck(ctx, uplink.DeviceIdentifier)
	if err != nil {
		return nil, 0, err
	}
	return g.service.IngestOdometer(ctx, truck, uplink.Timestamp, uplink.OdometerReading)
}

func (g *Gateway) HandleDriveState(ctx context.Context, uplink DriveStateUplink) (*models.TruckDriveState, Disposition, error) {
	metrics.UplinksReceived.Add(1)

	truck, err := g.resolveTruck(ctx, uplink.DeviceIdentifier)
	if err != nil {
		return nil, 0, err
	}
	return g.service.IngestDriveState(ctx, truck, uplink.Timestamp, models.ParseDriveState(uplink.State), uplink.DriverCardID)
}

func (g *Gateway) HandleLocation(ctx context.Context, uplink LocationUplink) (Disposition, error) {
	metrics.UplinksReceived.Add(1)

	truck, err := g.resolveTruck(ctx, uplink.DeviceIdentifier)
	if err != nil {
		return 0, err
	}
	return g.service.IngestLocation(ctx, truck, uplink.Timestamp, LocationPayload{
		Latitude:  uplink.Latitude,
		Longitude: uplink.Longitude,
		Heading:   uplink.Heading,
		Speed:     uplink.Speed,
	})
}

func (g *Gateway) resolveDevice(ctx context.Context, deviceIdentifier string) (*models.Truck, *models.Towable, error) {
	truck, err := g.trucks.FindTruckByIMEI(ctx, deviceIdentifier)
	if err != nil {
		return nil, nil, err
	}
	if truck != nil {
		return truck, nil, nil
	}
	towable, err := g.towables.FindTowableByIMEI(ctx, deviceIdentifier)
	if err != nil {
		return nil, nil, err
	}
	if towable != nil {
		return nil, towable, nil
	}
	metrics.UnknownDeviceUplinks.Add(1)
	return nil, nil, ErrUnknownDevice
}

func (g *Gateway) resolveTruck(ctx context.Context, deviceIdentifier string) (*models.Truck, error) {
	truck, err := g.trucks.FindTruckByIMEI(ctx, deviceIdentifier)
	if err != nil {
		return nil, err
	}
	if truck == nil {
		metrics.UnknownDeviceUplinks.Add(1)
		return nil, ErrUnknownDevice
	}
	return truck, nil
}
