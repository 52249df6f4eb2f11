package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/herdguard/herdguard-server/internal/geometry"
	"github.com/herdguard/herdguard-server/internal/models"
)

// ========== Geofence handlers ==========

// HandleListGeofences lists the tenant's geofences
func (s *RESTServer) HandleListGeofences(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	zones, err := s.store.ListGeofences(r.Context(), tenantID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"geofences": zones,
		"total":     len(zones),
	})
}

// HandleCreateGeofence creates a geofence. The outer boundary is derived
// from the inner boundary and the buffer distance, never supplied by the
// client.
func (s *RESTServer) HandleCreateGeofence(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	var req struct {
		Name          string      `json:"name" validate:"required,min=1,max=100"`
		InnerBoundary models.Ring `json:"inner_boundary" validate:"required"`
		BufferMeters  int         `json:"buffer_meters"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outer, err := geometry.Buffer(req.InnerBoundary.Orb(), req.BufferMeters)
	if err != nil {
		s.respondGeometryError(w, err)
		return
	}

	zone := &models.Geofence{
		TenantModel: models.TenantModel{
			TenantID: tenantID,
		},
		Name:          req.Name,
		InnerBoundary: req.InnerBoundary,
		BufferMeters:  req.BufferMeters,
		OuterBoundary: models.RingFromOrb(outer),
	}

	if err := s.store.CreateGeofence(r.Context(), zone); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, zone)
}

// HandleGetGeofence gets a geofence
func (s *RESTServer) HandleGetGeofence(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid geofence id")
		return
	}

	zone, err := s.store.GetGeofence(r.Context(), tenantID, id)
	if err != nil {
		s.respondStoreError(w, err, "geofence")
		return
	}

	s.respondJSON(w, http.StatusOK, zone)
}

// HandleUpdateGeofence updates a geofence and rederives its outer
// boundary
func (s *RESTServer) HandleUpdateGeofence(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid geofence id")
		return
	}

	var req struct {
		Name          string      `json:"name" validate:"required,min=1,max=100"`
		InnerBoundary models.Ring `json:"inner_boundary" validate:"required"`
		BufferMeters  int         `json:"buffer_meters"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	zone, err := s.store.GetGeofence(r.Context(), tenantID, id)
	if err != nil {
		s.respondStoreError(w, err, "geofence")
		return
	}

	outer, err := geometry.Buffer(req.InnerBoundary.Orb(), req.BufferMeters)
	if err != nil {
		s.respondGeometryError(w, err)
		return
	}

	zone.Name = req.Name
	zone.InnerBoundary = req.InnerBoundary
	zone.BufferMeters = req.BufferMeters
	zone.OuterBoundary = models.RingFromOrb(outer)

	if err := s.store.UpdateGeofence(r.Context(), zone); err != nil {
		s.respondStoreError(w, err, "geofence")
		return
	}

	s.respondJSON(w, http.StatusOK, zone)
}

// HandleDeleteGeofence deletes a geofence
func (s *RESTServer) HandleDeleteGeofence(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid geofence id")
		return
	}

	if err := s.store.DeleteGeofence(r.Context(), tenantID, id); err != nil {
		s.respondStoreError(w, err, "geofence")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSetGeofenceBuffer changes only the buffer distance and
// recomputes the outer boundary from the stored inner boundary.
func (s *RESTServer) HandleSetGeofenceBuffer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid geofence id")
		return
	}

	var req struct {
		BufferMeters int `json:"buffer_meters"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	zone, err := s.store.GetGeofence(r.Context(), tenantID, id)
	if err != nil {
		s.respondStoreError(w, err, "geofence")
		return
	}

	outer, err := geometry.Buffer(zone.InnerBoundary.Orb(), req.BufferMeters)
	if err != nil {
		s.respondGeometryError(w, err)
		return
	}

	zone.BufferMeters = req.BufferMeters
	zone.OuterBoundary = models.RingFromOrb(outer)

	if err := s.store.UpdateGeofence(r.Context(), zone); err != nil {
		s.respondStoreError(w, err, "geofence")
		return
	}

	s.respondJSON(w, http.StatusOK, zone)
}

func (s *RESTServer) respondGeometryError(w http.ResponseWriter, err error) {
	if errors.Is(err, geometry.ErrInvalidGeometry) || errors.Is(err, geometry.ErrBufferOutOfRange) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}
