package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	log "github.com/sirupsen/logrus"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Location is a geographical position.
type Location struct {
	Lat float64
	Lon float64
}

// Uplink payloads mirror what the telematics units send.
type temperatureUplink struct {
	DeviceIdentifier string  `json:"deviceIdentifier"`
	HardwareSensorID string  `json:"hardwareSensorId"`
	Timestamp        int64   `json:"timestamp"`
	Value            float64 `json:"value"`
}

type odometerUplink struct {
	DeviceIdentifier string `json:"deviceIdentifier"`
	Timestamp        int64  `json:"timestamp"`
	OdometerReading  int64  `json:"odometerReading"`
}

type driveStateUplink struct {
	DeviceIdentifier string  `json:"deviceIdentifier"`
	Timestamp        int64   `json:"timestamp"`
	State            string  `json:"state"`
	DriverCardID     *string `json:"driverCardId,omitempty"`
}

type locationUplink struct {
	DeviceIdentifier string  `json:"deviceIdentifier"`
	Timestamp        int64   `json:"timestamp"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Speed            float64 `json:"speed"`
}

// Depot locations the simulated fleet operates around
var cities = []Location{
	{Lat: 51.5074, Lon: -0.1278}, // London
	{Lat: 40.4168, Lon: -3.7038}, // Madrid
	{Lat: 48.8566, Lon: 2.3522},  // Paris
	{Lat: 52.5200, Lon: 13.4050}, // Berlin
	{Lat: 52.2297, Lon: 21.0122}, // Warsaw
	{Lat: 50.0755, Lon: 14.4378}, // Prague
	{Lat: 51.4816, Lon: -3.1791}, // Cardiff
	{Lat: 41.0082, Lon: 28.9784}, // Istanbul
}

func jitterLocation(base Location, meters float64) Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rand.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func randomLocation() Location {
	base := cities[rand.Intn(len(cities))]
	return jitterLocation(base, 500)
}

func haversineKm(a, b Location) float64 {
	R := 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return R * c
}

// TruckState is one simulated truck with its telematics unit.
type TruckState struct {
	IMEI             string
	APIKey           string
	HardwareSensorID string
	Position         Location
	SpeedKmh         float64
	OdometerKm       int64
	State            string
	DriverCardID     string
	TempC            float64
}

var driveStates = []string{"DRIVE", "WORK", "REST"}

func newTruckState(index int, apiKey string) *TruckState {
	return &TruckState{
		IMEI:             fmt.Sprintf("3500000000%05d", index+1),
		APIKey:           apiKey,
		HardwareSensorID: fmt.Sprintf("28-%08x", rand.Uint32()),
		Position:         randomLocation(),
		SpeedKmh:         40 + rand.Float64()*40,
		OdometerKm:       int64(50000 + rand.Intn(300000)),
		State:            "REST",
		DriverCardID:     fmt.Sprintf("card-%04d", rand.Intn(100)),
		TempC:            -20 + rand.Float64()*4,
	}
}

func (s *TruckState) step(tickSec float64) {
	// speed noise
	s.SpeedKmh += (rand.Float64()*2 - 1) * 3
	if s.SpeedKmh < 0 {
		s.SpeedKmh = 0
	}
	if s.SpeedKmh > 90 {
		s.SpeedKmh = 90
	}

	if s.State == "DRIVE" {
		prev := s.Position
		s.Position = jitterLocation(s.Position, s.SpeedKmh*tickSec/3.6)
		s.OdometerKm += int64(math.Round(haversineKm(prev, s.Position)))
	}

	// occasional state transition; dwell keeps most ticks unchanged, which
	// exercises the no-change suppression downstream
	if rand.Float64() < 0.05 {
		s.State = driveStates[rand.Intn(len(driveStates))]
	}
	if rand.Float64() < 0.01 {
		s.DriverCardID = fmt.Sprintf("card-%04d", rand.Intn(100))
	}

	// reefer temperature drifts slowly around the set point
	s.TempC += (rand.Float64()*2 - 1) * 0.2
}

func postUplink(apiURL, path, imei, apiKey string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Failed to marshal uplink")
		return
	}
	req, err := http.NewRequest(http.MethodPost, apiURL+path, bytes.NewBuffer(data))
	if err != nil {
		log.WithError(err).Error("Failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-Id", imei)
	req.Header.Set("X-Api-Key", apiKey)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to send uplink")
		return
	}
	defer resp.Body.Close()
	log.WithFields(log.Fields{
		"imei":   imei,
		"path":   path,
		"status": resp.Status,
	}).Debug("Sent uplink")
}

func simulateTruck(apiURL string, s *TruckState, interval time.Duration, duplicateRate float64) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for range tick.C {
		s.step(interval.Seconds())
		now := time.Now().Unix()

		uplinks := []struct {
			path    string
			payload interface{}
		}{
			{"/api/v1/telemetry/temperature", temperatureUplink{
				DeviceIdentifier: s.IMEI,
				HardwareSensorID: s.HardwareSensorID,
				Timestamp:        now,
				Value:            s.TempC,
			}},
			{"/api/v1/telemetry/odometer", odometerUplink{
				DeviceIdentifier: s.IMEI,
				Timestamp:        now,
				OdometerReading:  s.OdometerKm,
			}},
			{"/api/v1/telemetry/drive-state", driveStateUplink{
				DeviceIdentifier: s.IMEI,
				Timestamp:        now,
				State:            s.State,
				DriverCardID:     &s.DriverCardID,
			}},
			{"/api/v1/telemetry/location", locationUplink{
				DeviceIdentifier: s.IMEI,
				Timestamp:        now,
				Latitude:         s.Position.Lat,
				Longitude:        s.Position.Lon,
				Speed:            s.SpeedKmh,
			}},
		}

		for _, u := range uplinks {
			postUplink(apiURL, u.path, s.IMEI, s.APIKey, u.payload)
			// cellular units retransmit on flaky ACKs; the ingestion side
			// must treat these as duplicates
			if rand.Float64() < duplicateRate {
				postUplink(apiURL, u.path, s.IMEI, s.APIKey, u.payload)
			}
		}
	}
}

func main() {
	apiKey := os.Getenv("SIM_DEVICE_API_KEY")
	if apiKey == "" {
		log.Fatal("SIM_DEVICE_API_KEY is required; provision keys via the back office first")
	}

	fleetSize := 5
	if val := os.Getenv("FLEET_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			fleetSize = n
		}
	}

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	interval := 5 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	duplicateRate := 0.2
	if v := os.Getenv("SIM_DUPLICATE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			duplicateRate = f
		}
	}

	log.WithFields(log.Fields{
		"fleet_size":     fleetSize,
		"api_url":        apiURL,
		"interval":       interval,
		"duplicate_rate": duplicateRate,
	}).Info("Starting uplink simulation")

	for i := 0; i < fleetSize; i++ {
		go simulateTruck(apiURL, newTruckState(i, apiKey), interval, duplicateRate)
	}

	select {} // Block forever
}
