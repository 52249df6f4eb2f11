package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/herdguard/herdguard-server/internal/config"
	"github.com/herdguard/herdguard-server/internal/models"
	"github.com/herdguard/herdguard-server/internal/storage"
	"github.com/herdguard/herdguard-server/pkg/crypto"
)

type stubPublisher struct {
	subjects []string
}

func (p *stubPublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

type apiEnv struct {
	server *RESTServer
	store  *storage.MemoryStore
	pub    *stubPublisher
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Name = "herdguard"
	cfg.Server.Version = "test"
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = 24 * time.Hour

	store := storage.NewMemoryStore()
	pub := &stubPublisher{}

	return &apiEnv{
		server: NewRESTServer(cfg, store, pub),
		store:  store,
		pub:    pub,
	}
}

func (e *apiEnv) seedUser(t *testing.T, email, password string, tenant *models.Tenant, isAdmin bool) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		IsActive:     true,
		Settings:     make(models.Variables),
	}
	if tenant != nil {
		user.TenantID = &tenant.ID
	}
	require.NoError(t, e.store.CreateUser(context.Background(), user))
	return user
}

func (e *apiEnv) seedTenant(t *testing.T, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: name, IsActive: true}
	require.NoError(t, e.store.CreateTenant(context.Background(), tenant))
	return tenant
}

func (e *apiEnv) login(t *testing.T, email, password string) string {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	rec := e.do(t, "POST", "/api/v1/auth/login", "", bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.router.ServeHTTP(rec, req)
	return rec
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "GET", "/api/v1/device-links", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, "GET", "/api/v1/device-links", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newAPIEnv(t)
	tenant := env.seedTenant(t, "farm-a")
	env.seedUser(t, "farmer@example.com", "sheep123", tenant, false)

	body, _ := json.Marshal(map[string]string{"email": "farmer@example.com", "password": "wrong"})
	rec := env.do(t, "POST", "/api/v1/auth/login", "", bytes.NewReader(body))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginAndGetCurrentUser(t *testing.T) {
	env := newAPIEnv(t)
	tenant := env.seedTenant(t, "farm-a")
	env.seedUser(t, "farmer@example.com", "sheep123", tenant, false)

	token := env.login(t, "farmer@example.com", "sheep123")

	rec := env.do(t, "GET", "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	require.Equal(t, "farmer@example.com", user.Email)
	require.Empty(t, user.PasswordHash)
}

func TestCreateAndBufferGeofence(t *testing.T) {
	env := newAPIEnv(t)
	tenant := env.seedTenant(t, "farm-a")
	env.seedUser(t, "farmer@example.com", "sheep123", tenant, false)
	token := env.login(t, "farmer@example.com", "sheep123")

	body, _ := json.Marshal(map[string]interface{}{
		"name": "home pasture",
		"inner_boundary": [][2]float64{
			{7.5940, 51.9682},
			{7.5972, 51.9682},
			{7.5972, 51.9702},
			{7.5940, 51.9702},
			{7.5940, 51.9682},
		},
		"buffer_meters": 0,
	})
	rec := env.do(t, "POST", "/api/v1/geofences", token, bytes.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var zone models.Geofence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zone))
	require.True(t, zone.OuterBoundary.Equal(zone.InnerBoundary),
		"zero buffer keeps the outer boundary identical")

	// Widen the buffer.
	body, _ = json.Marshal(map[string]int{"buffer_meters": 25})
	rec = env.do(t, "PUT", fmt.Sprintf("/api/v1/geofences/%s/buffer", zone.ID), token, bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zone))
	require.Equal(t, 25, zone.BufferMeters)
	require.False(t, zone.OuterBoundary.Equal(zone.InnerBoundary))

	// Out of range is rejected.
	body, _ = json.Marshal(map[string]int{"buffer_meters": 51})
	rec = env.do(t, "PUT", fmt.Sprintf("/api/v1/geofences/%s/buffer", zone.ID), token, bytes.NewReader(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeofenceRejectsSelfIntersection(t *testing.T) {
	env := newAPIEnv(t)
	tenant := env.seedTenant(t, "farm-a")
	env.seedUser(t, "farmer@example.com", "sheep123", tenant, false)
	token := env.login(t, "farmer@example.com", "sheep123")

	body, _ := json.Marshal(map[string]interface{}{
		"name": "bowtie",
		"inner_boundary": [][2]float64{
			{7.5940, 51.9682},
			{7.5972, 51.9702},
			{7.5972, 51.9682},
			{7.5940, 51.9702},
			{7.5940, 51.9682},
		},
		"buffer_meters": 10,
	})
	rec := env.do(t, "POST", "/api/v1/geofences", token, bytes.NewReader(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCrossTenantGeofenceAccess(t *testing.T) {
	env := newAPIEnv(t)
	a := env.seedTenant(t, "farm-a")
	b := env.seedTenant(t, "farm-b")
	env.seedUser(t, "a@example.com", "sheep123", a, false)
	env.seedUser(t, "b@example.com", "sheep123", b, false)

	tokenA := env.login(t, "a@example.com", "sheep123")
	tokenB := env.login(t, "b@example.com", "sheep123")

	body, _ := json.Marshal(map[string]interface{}{
		"name": "home pasture",
		"inner_boundary": [][2]float64{
			{7.5940, 51.9682},
			{7.5972, 51.9682},
			{7.5972, 51.9702},
			{7.5940, 51.9702},
			{7.5940, 51.9682},
		},
	})
	rec := env.do(t, "POST", "/api/v1/geofences", tokenA, bytes.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code)

	var zone models.Geofence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zone))

	rec = env.do(t, "GET", fmt.Sprintf("/api/v1/geofences/%s", zone.ID), tokenB, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, "DELETE", fmt.Sprintf("/api/v1/geofences/%s", zone.ID), tokenB, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Still there for its owner.
	rec = env.do(t, "GET", fmt.Sprintf("/api/v1/geofences/%s", zone.ID), tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRelinkReturnsExistingLink(t *testing.T) {
	env := newAPIEnv(t)
	tenant := env.seedTenant(t, "farm-a")
	env.seedUser(t, "farmer@example.com", "sheep123", tenant, false)
	token := env.login(t, "farmer@example.com", "sheep123")

	body, _ := json.Marshal(map[string]string{"tracker_id": "collar-001", "name": "Bella"})
	rec := env.do(t, "POST", "/api/v1/device-links", token, bytes.NewReader(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.DeviceLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Linking the same tracker again is a no-op: the existing link comes
	// back untouched, the request body is ignored.
	body, _ = json.Marshal(map[string]string{"tracker_id": "collar-001", "name": "Bella again"})
	rec = env.do(t, "POST", "/api/v1/device-links", token, bytes.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var existing models.DeviceLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &existing))
	require.Equal(t, created.ID, existing.ID)
	require.Equal(t, "Bella", existing.Name)

	// Still exactly one link.
	rec = env.do(t, "GET", "/api/v1/device-links", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, int64(1), list.Total)
}

func TestSubmitFixValidatesAndQueues(t *testing.T) {
	env := newAPIEnv(t)
	tenant := env.seedTenant(t, "farm-a")
	env.seedUser(t, "farmer@example.com", "sheep123", tenant, false)
	token := env.login(t, "farmer@example.com", "sheep123")

	body, _ := json.Marshal(map[string]interface{}{
		"tracker_id": "collar-001",
		"lng":        7.5956,
		"lat":        95.0,
		"timestamp":  time.Now(),
	})
	rec := env.do(t, "POST", "/api/v1/fixes", token, bytes.NewReader(body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, env.pub.subjects)

	body, _ = json.Marshal(map[string]interface{}{
		"tracker_id": "collar-001",
		"lng":        7.5956,
		"lat":        51.9692,
		"timestamp":  time.Now(),
	})
	rec = env.do(t, "POST", "/api/v1/fixes", token, bytes.NewReader(body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, []string{"tracker.collar-001.fix"}, env.pub.subjects)
}

func TestTenantRoutesRequireAdmin(t *testing.T) {
	env := newAPIEnv(t)
	tenant := env.seedTenant(t, "farm-a")
	env.seedUser(t, "farmer@example.com", "sheep123", tenant, false)
	token := env.login(t, "farmer@example.com", "sheep123")

	rec := env.do(t, "GET", "/api/v1/tenants", token, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	env.seedUser(t, "admin@example.com", "hunter22", nil, true)
	adminToken := env.login(t, "admin@example.com", "hunter22")

	rec = env.do(t, "GET", "/api/v1/tenants", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
