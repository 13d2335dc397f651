package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/fleetops/backoffice/internal/db"
)

// ThermometerHandler exposes the back-office view of resolved thermometers.
type ThermometerHandler struct {
	thermometers db.ThermometerCollection
}

// NewThermometerHandler creates a new thermometer handler
func NewThermometerHandler(thermometers db.ThermometerCollection) *ThermometerHandler {
	return &ThermometerHandler{
		thermometers: thermometers,
	}
}

// ListActive handles GET /api/v1/thermometers
func (h *ThermometerHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	thermometers, err := h.thermometers.ListActive(r.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to list thermometers")
		http.Error(w, "Failed to list thermometers", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(thermometers)
}

// Rename handles PATCH /api/v1/thermometers/{id}
func (h *ThermometerHandler) Rename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid thermometer id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var renameReq struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &renameReq); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if renameReq.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.thermometers.RenameThermometer(r.Context(), id, renameReq.Name); err != nil {
		if errors.Is(err, db.ErrThermometerNotFound) {
			http.Error(w, "Thermometer not found", http.StatusNotFound)
			return
		}
		logrus.WithError(err).Error("Failed to rename thermometer")
		http.Error(w, "Failed to rename thermometer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Thermometer renamed successfully"})
}
