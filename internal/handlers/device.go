package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/auth"
	"github.com/fleetops/backoffice/internal/db"
	"github.com/fleetops/backoffice/internal/models"
)

// DeviceHandler provisions API keys for field devices. Admin only.
type DeviceHandler struct {
	authService *auth.Service
	credentials db.DeviceCredentialCollection
}

// NewDeviceHandler creates a new device provisioning handler
func NewDeviceHandler(authService *auth.Service, credentials db.DeviceCredentialCollection) *DeviceHandler {
	return &DeviceHandler{
		authService: authService,
		credentials: credentials,
	}
}

// ProvisionKey handles POST /api/v1/devices/keys. It issues a fresh API key
// for the given IMEI, replacing any previous one. The plain key appears in
// the response only; the database keeps the bcrypt hash.
func (h *DeviceHandler) ProvisionKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var provisionReq struct {
		IMEI string `json:"imei"`
	}
	if err := json.Unmarshal(body, &provisionReq); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if provisionReq.IMEI == "" {
		http.Error(w, "imei is required", http.StatusBadRequest)
		return
	}

	key, err := h.authService.GenerateAPIKey()
	if err != nil {
		logrus.WithError(err).Error("Failed to generate device api key")
		http.Error(w, "Failed to generate api key", http.StatusInternalServerError)
		return
	}

	hash, err := h.authService.HashAPIKey(key)
	if err != nil {
		logrus.WithError(err).Error("Failed to hash device api key")
		http.Error(w, "Failed to generate api key", http.StatusInternalServerError)
		return
	}

	credential := models.DeviceCredential{
		IMEI:    provisionReq.IMEI,
		KeyHash: hash,
	}
	if err := h.credentials.UpsertDeviceCredential(r.Context(), credential); err != nil {
		logrus.WithError(err).Error("Failed to store device credential")
		http.Error(w, "Failed to store device credential", http.StatusInternalServerError)
		return
	}

	logrus.WithField("imei", provisionReq.IMEI).Info("Device api key provisioned")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"imei":   provisionReq.IMEI,
		"apiKey": key,
	})
}
