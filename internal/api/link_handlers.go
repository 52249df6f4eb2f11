package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
)

// ========== Device Link handlers ==========

// HandleListDeviceLinks lists the tenant's device links
func (s *RESTServer) HandleListDeviceLinks(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	links, total, err := s.store.ListDeviceLinks(r.Context(), tenantID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"device_links": links,
		"total":        total,
	})
}

// HandleCreateDeviceLink registers a tracker to the tenant's herd
func (s *RESTServer) HandleCreateDeviceLink(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	var req struct {
		TrackerID string   `json:"tracker_id" validate:"required"`
		Name      string   `json:"name" validate:"required,min=1,max=100"`
		AgeMonths *int     `json:"age_months,omitempty"`
		WeightKg  *float64 `json:"weight_kg,omitempty"`
		Batch     string   `json:"batch,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.EnsureTracker(r.Context(), req.TrackerID); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	link := &models.DeviceLink{
		TenantModel: models.TenantModel{
			TenantID: tenantID,
		},
		TrackerID: req.TrackerID,
		Name:      req.Name,
		AgeMonths: req.AgeMonths,
		WeightKg:  req.WeightKg,
		Batch:     req.Batch,
	}

	if err := s.store.CreateDeviceLink(r.Context(), link); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// The tracker is already linked to this tenant. Re-linking is
			// a no-op that returns the existing link unchanged.
			existing, err := s.store.GetDeviceLinkByTracker(r.Context(), tenantID, req.TrackerID)
			if err != nil {
				s.respondError(w, http.StatusInternalServerError, err.Error())
				return
			}
			s.respondJSON(w, http.StatusOK, existing)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, link)
}

// HandleGetDeviceLink gets a device link
func (s *RESTServer) HandleGetDeviceLink(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device link id")
		return
	}

	link, err := s.store.GetDeviceLink(r.Context(), tenantID, id)
	if err != nil {
		s.respondStoreError(w, err, "device link")
		return
	}

	s.respondJSON(w, http.StatusOK, link)
}

// HandleUpdateDeviceLink updates a device link's metadata
func (s *RESTServer) HandleUpdateDeviceLink(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device link id")
		return
	}

	var req struct {
		Name      string   `json:"name" validate:"required,min=1,max=100"`
		AgeMonths *int     `json:"age_months,omitempty"`
		WeightKg  *float64 `json:"weight_kg,omitempty"`
		Batch     string   `json:"batch,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := s.store.GetDeviceLink(r.Context(), tenantID, id)
	if err != nil {
		s.respondStoreError(w, err, "device link")
		return
	}

	link.Name = req.Name
	link.AgeMonths = req.AgeMonths
	link.WeightKg = req.WeightKg
	link.Batch = req.Batch

	if err := s.store.UpdateDeviceLink(r.Context(), link); err != nil {
		s.respondStoreError(w, err, "device link")
		return
	}

	s.respondJSON(w, http.StatusOK, link)
}

// HandleDeleteDeviceLink removes a tracker from the tenant's herd
func (s *RESTServer) HandleDeleteDeviceLink(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device link id")
		return
	}

	if err := s.store.DeleteDeviceLink(r.Context(), tenantID, id); err != nil {
		s.respondStoreError(w, err, "device link")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetDeviceLinkPosition gets the link's last known position and
// activity state
func (s *RESTServer) HandleGetDeviceLinkPosition(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid device link id")
		return
	}

	link, err := s.store.GetDeviceLink(r.Context(), tenantID, id)
	if err != nil {
		s.respondStoreError(w, err, "device link")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"device_link_id": link.ID,
		"tracker_id":     link.TrackerID,
		"position":       link.LastPosition,
		"last_seen_at":   link.LastSeenAt,
		"active":         link.Active,
	})
}
