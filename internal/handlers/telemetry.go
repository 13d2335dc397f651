package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/identity"
	"github.com/fleetops/backoffice/internal/ingest"
)

// TelemetryHandler exposes the device uplink pipelines over HTTP.
type TelemetryHandler struct {
	gateway *ingest.Gateway
}

// NewTelemetryHandler creates a new telemetry handler
func NewTelemetryHandler(gateway *ingest.Gateway) *TelemetryHandler {
	return &TelemetryHandler{
		gateway: gateway,
	}
}

// ingestResponse is the wire shape for every ingestion endpoint. Record is
// omitted for dispositions that create nothing and for location uplinks,
// which span two collections.
type ingestResponse struct {
	Disposition string      `json:"disposition"`
	Record      interface{} `json:"record,omitempty"`
}

// IngestTemperature handles POST /api/v1/telemetry/temperature
func (h *TelemetryHandler) IngestTemperature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var uplink ingest.TemperatureUplink
	if err := json.Unmarshal(body, &uplink); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if uplink.DeviceIdentifier == "" || uplink.HardwareSensorID == "" {
		http.Error(w, "deviceIdentifier and hardwareSensorId are required", http.StatusBadRequest)
		return
	}
	if uplink.Timestamp <= 0 {
		http.Error(w, "timestamp is required", http.StatusBadRequest)
		return
	}

	reading, disposition, err := h.gateway.HandleTemperature(r.Context(), uplink)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeIngestResponse(w, disposition, reading)
}

// IngestOdometer handles POST /api/v1/telemetry/odometer
func (h *TelemetryHandler) IngestOdometer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var uplink ingest.OdometerUplink
	if err := json.Unmarshal(body, &uplink); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if uplink.DeviceIdentifier == "" {
		http.Error(w, "deviceIdentifier is required", http.StatusBadRequest)
		return
	}
	if uplink.Timestamp <= 0 {
		http.Error(w, "timestamp is required", http.StatusBadRequest)
		return
	}
	if uplink.OdometerReading < 0 {
		http.Error(w, "odometerReading must not be negative", http.StatusBadRequest)
		return
	}

	reading, disposition, err := h.gateway.HandleOdometer(r.Context(), uplink)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeIngestResponse(w, disposition, reading)
}

// IngestDriveState handles POST /api/v1/telemetry/drive-state
func (h *TelemetryHandler) IngestDriveState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var uplink ingest.DriveStateUplink
	if err := json.Unmarshal(body, &uplink); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if uplink.DeviceIdentifier == "" {
		http.Error(w, "deviceIdentifier is required", http.StatusBadRequest)
		return
	}
	if uplink.Timestamp <= 0 {
		http.Error(w, "timestamp is required", http.StatusBadRequest)
		return
	}

	record, disposition, err := h.gateway.HandleDriveState(r.Context(), uplink)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeIngestResponse(w, disposition, record)
}

// IngestLocation handles POST /api/v1/telemetry/location
func (h *TelemetryHandler) IngestLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var uplink ingest.LocationUplink
	if err := json.Unmarshal(body, &uplink); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if uplink.DeviceIdentifier == "" {
		http.Error(w, "deviceIdentifier is required", http.StatusBadRequest)
		return
	}
	if uplink.Timestamp <= 0 {
		http.Error(w, "timestamp is required", http.StatusBadRequest)
		return
	}
	if uplink.Latitude < -90 || uplink.Latitude > 90 || uplink.Longitude < -180 || uplink.Longitude > 180 {
		http.Error(w, "latitude or longitude out of range", http.StatusBadRequest)
		return
	}

	disposition, err := h.gateway.HandleLocation(r.Context(), uplink)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeIngestResponse(w, disposition, nil)
}

func writeIngestResponse(w http.ResponseWriter, disposition ingest.Disposition, record interface{}) {
	status := http.StatusOK
	if disposition == ingest.Created {
		status = http.StatusCreated
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ingestResponse{
		Disposition: disposition.String(),
		Record:      record,
	})
}

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnknownDevice):
		http.Error(w, "Unknown device", http.StatusNotFound)
	case errors.Is(err, identity.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logrus.WithError(err).Error("Uplink ingestion failed")
		http.Error(w, "Failed to ingest uplink", http.StatusInternalServerError)
	}
}
