package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/herdguard/herdguard-server/internal/auth"
	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
	"github.com/herdguard/herdguard-server/pkg/crypto"
)

// ========== Auth handlers ==========

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Get user
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Verify password
	if !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Check user status
	if !user.IsActive {
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	// Generate tokens
	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := s.auth.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// ========== User handlers ==========

// HandleGetCurrentUser gets current user
func (s *RESTServer) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.respondStoreError(w, err, "user")
		return
	}

	user.PasswordHash = ""
	s.respondJSON(w, http.StatusOK, user)
}

// HandleCreateUser creates a user
func (s *RESTServer) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	var req struct {
		Email     string     `json:"email" validate:"required,email"`
		Password  string     `json:"password" validate:"required,min=6"`
		FirstName string     `json:"firstName,omitempty"`
		LastName  string     `json:"lastName,omitempty"`
		TenantID  *uuid.UUID `json:"tenant_id"`
		IsAdmin   bool       `json:"is_admin"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := &models.User{
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		TenantID:     req.TenantID,
		IsAdmin:      req.IsAdmin,
		IsActive:     true,
		Settings:     make(models.Variables),
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "user with this email already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user.PasswordHash = ""
	s.respondJSON(w, http.StatusCreated, user)
}

// ========== Tenant handlers ==========

// HandleListTenants lists tenants
func (s *RESTServer) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	tenants, total, err := s.store.ListTenants(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": tenants,
		"total":   total,
	})
}

// HandleCreateTenant creates a tenant
func (s *RESTServer) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	var req struct {
		Name         string `json:"name" validate:"required,min=3,max=100"`
		Description  string `json:"description"`
		MaxLinkCount int    `json:"max_link_count"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant := &models.Tenant{
		Name:         req.Name,
		Description:  req.Description,
		MaxLinkCount: req.MaxLinkCount,
		IsActive:     true,
	}

	if tenant.MaxLinkCount == 0 {
		tenant.MaxLinkCount = 500
	}

	if err := s.store.CreateTenant(r.Context(), tenant); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "tenant already exists")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, tenant)
}

// HandleGetTenant gets a tenant
func (s *RESTServer) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	// Tenant users may read their own tenant, nothing else.
	if !claims.IsAdmin && (claims.TenantID == nil || *claims.TenantID != id) {
		s.respondError(w, http.StatusForbidden, "access denied")
		return
	}

	tenant, err := s.store.GetTenant(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "tenant")
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleUpdateTenant updates a tenant
func (s *RESTServer) HandleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req struct {
		Name         string `json:"name" validate:"required,min=3,max=100"`
		Description  string `json:"description"`
		MaxLinkCount int    `json:"max_link_count"`
		IsActive     bool   `json:"is_active"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := s.store.GetTenant(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err, "tenant")
		return
	}

	tenant.Name = req.Name
	tenant.Description = req.Description
	tenant.MaxLinkCount = req.MaxLinkCount
	if tenant.IsActive && !req.IsActive {
		now := time.Now()
		tenant.SuspendedAt = &now
	} else if req.IsActive {
		tenant.SuspendedAt = nil
	}
	tenant.IsActive = req.IsActive

	if err := s.store.UpdateTenant(r.Context(), tenant); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, tenant)
}

// HandleDeleteTenant deletes a tenant
func (s *RESTServer) HandleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if err := s.store.DeleteTenant(r.Context(), id); err != nil {
		s.respondStoreError(w, err, "tenant")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ========== Helper methods ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "HerdGuard Tracking Server",
		"version": s.config.Server.Version,
		"health":  "/api/v1/health",
	})
}

// actingTenantID resolves the tenant the request operates on. Tenant
// users are pinned to their own tenant; admins must name one with the
// tenant_id query parameter.
func (s *RESTServer) actingTenantID(r *http.Request, claims *auth.Claims) (uuid.UUID, error) {
	if claims.TenantID != nil {
		return *claims.TenantID, nil
	}
	if claims.IsAdmin {
		if tid := r.URL.Query().Get("tenant_id"); tid != "" {
			return uuid.Parse(tid)
		}
	}
	return uuid.Nil, errors.New("no tenant scope")
}

// respondStoreError maps store errors to HTTP statuses. A cross-tenant
// access is a 403 with no resource detail leaked.
func (s *RESTServer) respondStoreError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, storage.ErrPermissionDenied):
		s.respondError(w, http.StatusForbidden, "access denied")
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
