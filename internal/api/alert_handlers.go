package api

import (
	"net/http"
)

// ========== Alert handlers ==========

// HandleListAlerts lists the tenant's active alerts
func (s *RESTServer) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	tenantID, err := s.actingTenantID(r, claims)
	if err != nil {
		s.respondError(w, http.StatusForbidden, "no tenant scope")
		return
	}

	alerts, err := s.store.ListActiveAlerts(r.Context(), tenantID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}
