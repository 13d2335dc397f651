package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fleetops/backoffice/internal/driver"
	"github.com/fleetops/backoffice/internal/identity"
	"github.com/fleetops/backoffice/internal/ingest"
	"github.com/fleetops/backoffice/internal/models"
)

// fakeBackOffice is an in-memory stand-in for every collection the ingestion
// gateway touches, so handler tests can exercise full request round trips.
type fakeBackOffice struct {
	mu           sync.Mutex
	trucks       []*models.Truck
	towables     []*models.Towable
	thermometers []*models.Thermometer
	temperatures []models.TemperatureReading
	driveStates  []models.TruckDriveState
	odometers    []models.TruckOdometerReading
	locations    []models.TruckLocation
	speeds       []models.TruckSpeed
}

func (f *fakeBackOffice) InsertTruck(ctx context.Context, truck models.Truck) (*models.Truck, error) {
	return nil, nil
}

func (f *fakeBackOffice) FindTruckByIMEI(ctx context.Context, imei string) (*models.Truck, error) {
	for _, truck := range f.trucks {
		if truck.IMEI != nil && *truck.IMEI == imei {
			return truck, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) FindTruckByID(ctx context.Context, id primitive.ObjectID) (*models.Truck, error) {
	for _, truck := range f.trucks {
		if truck.ID == id {
			return truck, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) InsertTowable(ctx context.Context, towable models.Towable) (*models.Towable, error) {
	return nil, nil
}

func (f *fakeBackOffice) FindTowableByIMEI(ctx context.Context, imei string) (*models.Towable, error) {
	for _, towable := range f.towables {
		if towable.IMEI != nil && *towable.IMEI == imei {
			return towable, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) FindTowableByID(ctx context.Context, id primitive.ObjectID) (*models.Towable, error) {
	for _, towable := range f.towables {
		if towable.ID == id {
			return towable, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) InsertThermometer(ctx context.Context, thermometer models.Thermometer) (*models.Thermometer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	thermometer.ID = primitive.NewObjectID()
	thermometer.CreatedAt = time.Now()
	stored := thermometer
	f.thermometers = append(f.thermometers, &stored)
	out := stored
	return &out, nil
}

func (f *fakeBackOffice) FindActiveByTruck(ctx context.Context, truckID primitive.ObjectID) (*models.Thermometer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, th := range f.thermometers {
		if th.ArchivedAt == nil && th.TruckID != nil && *th.TruckID == truckID {
			out := *th
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) FindActiveByTowable(ctx context.Context, towableID primitive.ObjectID) (*models.Thermometer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, th := range f.thermometers {
		if th.ArchivedAt == nil && th.TowableID != nil && *th.TowableID == towableID {
			out := *th
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) FindActiveBySensor(ctx context.Context, hardwareSensorID string) (*models.Thermometer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, th := range f.thermometers {
		if th.ArchivedAt == nil && th.HardwareSensorID == hardwareSensorID {
			out := *th
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) ArchiveThermometer(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, th := range f.thermometers {
		if th.ID == id {
			archived := at
			th.ArchivedAt = &archived
		}
	}
	return nil
}

func (f *fakeBackOffice) ListActive(ctx context.Context) ([]models.Thermometer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []models.Thermometer
	for _, th := range f.thermometers {
		if th.ArchivedAt == nil {
			active = append(active, *th)
		}
	}
	return active, nil
}

func (f *fakeBackOffice) RenameThermometer(ctx context.Context, id primitive.ObjectID, name string) error {
	return nil
}

func (f *fakeBackOffice) InsertTemperatureReading(ctx context.Context, reading models.TemperatureReading) (*models.TemperatureReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reading.ID = primitive.NewObjectID()
	f.temperatures = append(f.temperatures, reading)
	return &reading, nil
}

func (f *fakeBackOffice) FindTemperatureReading(ctx context.Context, thermometerID primitive.ObjectID, timestamp int64) (*models.TemperatureReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reading := range f.temperatures {
		if reading.ThermometerID == thermometerID && reading.Timestamp == timestamp {
			out := reading
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) InsertDriveState(ctx context.Context, state models.TruckDriveState) (*models.TruckDriveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state.ID = primitive.NewObjectID()
	f.driveStates = append(f.driveStates, state)
	return &state, nil
}

func (f *fakeBackOffice) FindDriveState(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckDriveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, state := range f.driveStates {
		if state.TruckID == truckID && state.Timestamp == timestamp {
			out := state
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) FindLatestDriveStateAtOrBefore(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckDriveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.TruckDriveState
	for i := range f.driveStates {
		state := f.driveStates[i]
		if state.TruckID != truckID || state.Timestamp > timestamp {
			continue
		}
		if latest == nil || state.Timestamp > latest.Timestamp {
			out := state
			latest = &out
		}
	}
	return latest, nil
}

func (f *fakeBackOffice) InsertOdometerReading(ctx context.Context, reading models.TruckOdometerReading) (*models.TruckOdometerReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reading.ID = primitive.NewObjectID()
	f.odometers = append(f.odometers, reading)
	return &reading, nil
}

func (f *fakeBackOffice) FindOdometerReading(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckOdometerReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reading := range f.odometers {
		if reading.TruckID == truckID && reading.Timestamp == timestamp {
			out := reading
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) FindLatestOdometerAtOrBefore(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckOdometerReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.TruckOdometerReading
	for i := range f.odometers {
		reading := f.odometers[i]
		if reading.TruckID != truckID || reading.Timestamp > timestamp {
			continue
		}
		if latest == nil || reading.Timestamp > latest.Timestamp {
			out := reading
			latest = &out
		}
	}
	return latest, nil
}

func (f *fakeBackOffice) InsertLocation(ctx context.Context, location models.TruckLocation) (*models.TruckLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	location.ID = primitive.NewObjectID()
	f.locations = append(f.locations, location)
	return &location, nil
}

func (f *fakeBackOffice) FindLocation(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, location := range f.locations {
		if location.TruckID == truckID && location.Timestamp == timestamp {
			out := location
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) InsertSpeed(ctx context.Context, speed models.TruckSpeed) (*models.TruckSpeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	speed.ID = primitive.NewObjectID()
	f.speeds = append(f.speeds, speed)
	return &speed, nil
}

func (f *fakeBackOffice) FindSpeed(ctx context.Context, truckID primitive.ObjectID, timestamp int64) (*models.TruckSpeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, speed := range f.speeds {
		if speed.TruckID == truckID && speed.Timestamp == timestamp {
			out := speed
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeBackOffice) ResolveDriver(ctx context.Context, driverCardID string) (*driver.Driver, error) {
	if driverCardID == "card-1" {
		return &driver.Driver{ID: "driver-1", FirstName: "Jan", LastName: "Kowalski"}, nil
	}
	return nil, nil
}

func newTestTelemetryHandler(store *fakeBackOffice) *TelemetryHandler {
	resolver := identity.NewResolver(store, store, store)
	service := ingest.NewService(store, store, store, store, store, nil)
	gateway := ingest.NewGateway(store, store, resolver, service)
	return NewTelemetryHandler(gateway)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestTelemetryHandler_IngestTemperature(t *testing.T) {
	truckIMEI := "350000000000001"
	store := &fakeBackOffice{
		trucks: []*models.Truck{{ID: primitive.NewObjectID(), IMEI: &truckIMEI}},
	}
	handler := newTestTelemetryHandler(store)

	uplink := map[string]interface{}{
		"deviceIdentifier": truckIMEI,
		"hardwareSensorId": "A1",
		"timestamp":        1700000000,
		"value":            -18.5,
	}

	// First submission creates
	w := postJSON(t, handler.IngestTemperature, "/api/v1/telemetry/temperature", uplink)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "created", resp.Disposition)
	assert.Len(t, store.temperatures, 1)
	assert.Len(t, store.thermometers, 1)

	// Retransmission is accepted without a second record
	w = postJSON(t, handler.IngestTemperature, "/api/v1/telemetry/temperature", uplink)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "duplicate", resp.Disposition)
	assert.Len(t, store.temperatures, 1)
}

func TestTelemetryHandler_IngestTemperature_Validation(t *testing.T) {
	handler := newTestTelemetryHandler(&fakeBackOffice{})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/telemetry/temperature", nil)
		w := httptest.NewRecorder()
		handler.IngestTemperature(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/telemetry/temperature", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		handler.IngestTemperature(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing sensor id", func(t *testing.T) {
		w := postJSON(t, handler.IngestTemperature, "/api/v1/telemetry/temperature", map[string]interface{}{
			"deviceIdentifier": "350000000000001",
			"timestamp":        1700000000,
			"value":            4.0,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown device", func(t *testing.T) {
		w := postJSON(t, handler.IngestTemperature, "/api/v1/telemetry/temperature", map[string]interface{}{
			"deviceIdentifier": "359999999999999",
			"hardwareSensorId": "A1",
			"timestamp":        1700000000,
			"value":            4.0,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTelemetryHandler_IngestOdometer(t *testing.T) {
	truckIMEI := "350000000000001"
	store := &fakeBackOffice{
		trucks: []*models.Truck{{ID: primitive.NewObjectID(), IMEI: &truckIMEI}},
	}
	handler := newTestTelemetryHandler(store)

	w := postJSON(t, handler.IngestOdometer, "/api/v1/telemetry/odometer", map[string]interface{}{
		"deviceIdentifier": truckIMEI,
		"timestamp":        1700000000,
		"odometerReading":  120500,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, store.odometers, 1)

	// Same value later is suppressed
	w = postJSON(t, handler.IngestOdometer, "/api/v1/telemetry/odometer", map[string]interface{}{
		"deviceIdentifier": truckIMEI,
		"timestamp":        1700000060,
		"odometerReading":  120500,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "suppressed", resp.Disposition)
	assert.Len(t, store.odometers, 1)

	// Negative reading is rejected before the pipeline
	w = postJSON(t, handler.IngestOdometer, "/api/v1/telemetry/odometer", map[string]interface{}{
		"deviceIdentifier": truckIMEI,
		"timestamp":        1700000120,
		"odometerReading":  -5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTelemetryHandler_IngestDriveState(t *testing.T) {
	truckIMEI := "350000000000001"
	store := &fakeBackOffice{
		trucks: []*models.Truck{{ID: primitive.NewObjectID(), IMEI: &truckIMEI}},
	}
	handler := newTestTelemetryHandler(store)

	w := postJSON(t, handler.IngestDriveState, "/api/v1/telemetry/drive-state", map[string]interface{}{
		"deviceIdentifier": truckIMEI,
		"timestamp":        1700000000,
		"state":            "DRIVE",
		"driverCardId":     "card-1",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.driveStates, 1)
	assert.Equal(t, models.DriveStateDrive, store.driveStates[0].State)
	require.NotNil(t, store.driveStates[0].DriverID)
	assert.Equal(t, "driver-1", *store.driveStates[0].DriverID)
}

func TestTelemetryHandler_IngestLocation(t *testing.T) {
	truckIMEI := "350000000000001"
	store := &fakeBackOffice{
		trucks: []*models.Truck{{ID: primitive.NewObjectID(), IMEI: &truckIMEI}},
	}
	handler := newTestTelemetryHandler(store)

	speed := 62.5
	w := postJSON(t, handler.IngestLocation, "/api/v1/telemetry/location", map[string]interface{}{
		"deviceIdentifier": truckIMEI,
		"timestamp":        1700000000,
		"latitude":         52.2297,
		"longitude":        21.0122,
		"speed":            speed,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, store.locations, 1)
	assert.Len(t, store.speeds, 1)

	// Out-of-range coordinates are rejected
	w = postJSON(t, handler.IngestLocation, "/api/v1/telemetry/location", map[string]interface{}{
		"deviceIdentifier": truckIMEI,
		"timestamp":        1700000060,
		"latitude":         123.0,
		"longitude":        21.0122,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
