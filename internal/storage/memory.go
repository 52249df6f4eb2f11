package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herdguard/herdguard-server/internal/models"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors the PostgresStore's error semantics, including the scoped
// miss disambiguation between ErrNotFound and ErrPermissionDenied.
type MemoryStore struct {
	mu sync.RWMutex

	users    map[uuid.UUID]*models.User
	tenants  map[uuid.UUID]*models.Tenant
	trackers map[string]*models.Tracker
	fixes    map[string]*models.LocationFix
	links    map[uuid.UUID]*models.DeviceLink
	zones    map[uuid.UUID]*models.Geofence
	alerts   map[uuid.UUID]*models.Alert
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]*models.User),
		tenants:  make(map[uuid.UUID]*models.Tenant),
		trackers: make(map[string]*models.Tracker),
		fixes:    make(map[string]*models.LocationFix),
		links:    make(map[uuid.UUID]*models.DeviceLink),
		zones:    make(map[uuid.UUID]*models.Geofence),
		alerts:   make(map[uuid.UUID]*models.Alert),
	}
}

// BeginTx returns the store itself; the in-memory store has no
// transaction isolation.
func (s *MemoryStore) BeginTx(ctx context.Context) (Store, error) { return s, nil }

// Commit is a no-op
func (s *MemoryStore) Commit() error { return nil }

// Rollback is a no-op
func (s *MemoryStore) Rollback() error { return nil }

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// ========== User Methods ==========

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrDuplicateKey
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ========== Tenant Methods ==========

func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tenants {
		if t.Name == tenant.Name {
			return ErrDuplicateKey
		}
	}

	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tenant
	return &cp, nil
}

func (s *MemoryStore) UpdateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenant.ID]; !ok {
		return ErrNotFound
	}
	tenant.UpdatedAt = time.Now()
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(s.tenants, id)
	return nil
}

func (s *MemoryStore) ListTenants(ctx context.Context, limit, offset int) ([]*models.Tenant, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Tenant
	for _, t := range s.tenants {
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	count := int64(len(all))
	return page(all, limit, offset), count, nil
}

// ========== Tracker and Fix Methods ==========

func (s *MemoryStore) EnsureTracker(ctx context.Context, trackerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trackers[trackerID]; !ok {
		s.trackers[trackerID] = &models.Tracker{ID: trackerID, CreatedAt: time.Now()}
	}
	return nil
}

func (s *MemoryStore) UpsertLocationFix(ctx context.Context, fix *models.LocationFix) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fix.UpdatedAt = time.Now()
	cp := *fix
	s.fixes[fix.TrackerID] = &cp
	return nil
}

func (s *MemoryStore) GetLocationFix(ctx context.Context, trackerID string) (*models.LocationFix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fix, ok := s.fixes[trackerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *fix
	return &cp, nil
}

// ========== Device Link Methods ==========

func (s *MemoryStore) CreateDeviceLink(ctx context.Context, link *models.DeviceLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.links {
		if l.TenantID == link.TenantID && l.TrackerID == link.TrackerID {
			return ErrDuplicateKey
		}
	}

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now

	cp := *link
	s.links[link.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDeviceLink(ctx context.Context, tenantID, linkID uuid.UUID) (*models.DeviceLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[linkID]
	if !ok {
		return nil, ErrNotFound
	}
	if link.TenantID != tenantID {
		return nil, ErrPermissionDenied
	}
	cp := *link
	return &cp, nil
}

func (s *MemoryStore) GetDeviceLinkByTracker(ctx context.Context, tenantID uuid.UUID, trackerID string) (*models.DeviceLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.links {
		if l.TenantID == tenantID && l.TrackerID == trackerID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListDeviceLinks(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.DeviceLink, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.DeviceLink
	for _, l := range s.links {
		if l.TenantID == tenantID {
			cp := *l
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	count := int64(len(all))
	return page(all, limit, offset), count, nil
}

func (s *MemoryStore) ListDeviceLinksByTracker(ctx context.Context, trackerID string) ([]*models.DeviceLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var links []*models.DeviceLink
	for _, l := range s.links {
		if l.TrackerID == trackerID {
			cp := *l
			links = append(links, &cp)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) })
	return links, nil
}

func (s *MemoryStore) UpdateDeviceLink(ctx context.Context, link *models.DeviceLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.links[link.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.TenantID != link.TenantID {
		return ErrPermissionDenied
	}

	existing.UpdatedAt = time.Now()
	existing.Name = link.Name
	existing.AgeMonths = link.AgeMonths
	existing.WeightKg = link.WeightKg
	existing.Batch = link.Batch
	return nil
}

func (s *MemoryStore) UpdateDeviceLinkState(ctx context.Context, linkID uuid.UUID, pos models.Point, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok {
		return ErrNotFound
	}

	p := pos
	t := seenAt
	link.LastPosition = &p
	link.LastSeenAt = &t
	link.Active = true
	link.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) DeactivateStaleLinks(ctx context.Context, seenBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, link := range s.links {
		if link.Active && link.LastSeenAt != nil && !link.LastSeenAt.After(seenBefore) {
			link.Active = false
			link.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteDeviceLink(ctx context.Context, tenantID, linkID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok {
		return ErrNotFound
	}
	if link.TenantID != tenantID {
		return ErrPermissionDenied
	}

	delete(s.links, linkID)
	for id, alert := range s.alerts {
		if alert.DeviceLinkID == linkID {
			delete(s.alerts, id)
		}
	}
	return nil
}

// ========== Geofence Methods ==========

func (s *MemoryStore) CreateGeofence(ctx context.Context, zone *models.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if zone.ID == uuid.Nil {
		zone.ID = uuid.New()
	}
	now := time.Now()
	zone.CreatedAt = now
	zone.UpdatedAt = now

	cp := *zone
	s.zones[zone.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGeofence(ctx context.Context, tenantID, zoneID uuid.UUID) (*models.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	zone, ok := s.zones[zoneID]
	if !ok {
		return nil, ErrNotFound
	}
	if zone.TenantID != tenantID {
		return nil, ErrPermissionDenied
	}
	cp := *zone
	return &cp, nil
}

func (s *MemoryStore) ListGeofences(ctx context.Context, tenantID uuid.UUID) ([]*models.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zones []*models.Geofence
	for _, z := range s.zones {
		if z.TenantID == tenantID {
			cp := *z
			zones = append(zones, &cp)
		}
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].CreatedAt.Before(zones[j].CreatedAt) })
	return zones, nil
}

func (s *MemoryStore) UpdateGeofence(ctx context.Context, zone *models.Geofence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.zones[zone.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.TenantID != zone.TenantID {
		return ErrPermissionDenied
	}

	zone.UpdatedAt = time.Now()
	zone.CreatedAt = existing.CreatedAt
	cp := *zone
	s.zones[zone.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteGeofence(ctx context.Context, tenantID, zoneID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zone, ok := s.zones[zoneID]
	if !ok {
		return ErrNotFound
	}
	if zone.TenantID != tenantID {
		return ErrPermissionDenied
	}
	delete(s.zones, zoneID)
	return nil
}

// ========== Alert Methods ==========

func (s *MemoryStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.DeviceLinkID == alert.DeviceLinkID && a.Type == alert.Type && a.Active {
			return ErrDuplicateKey
		}
	}

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	alert.CreatedAt = time.Now()
	alert.Active = true

	cp := *alert
	cp.Link = nil
	s.alerts[alert.ID] = &cp
	return nil
}

func (s *MemoryStore) GetActiveAlert(ctx context.Context, linkID uuid.UUID, alertType models.AlertType) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.DeviceLinkID == linkID && a.Type == alertType && a.Active {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SetAlertClearCandidate(ctx context.Context, alertID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok || !alert.Active || alert.ClearCandidateAt != nil {
		return nil
	}
	t := at
	alert.ClearCandidateAt = &t
	return nil
}

func (s *MemoryStore) ResetAlertClearCandidate(ctx context.Context, alertID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok || !alert.Active {
		return nil
	}
	alert.ClearCandidateAt = nil
	return nil
}

func (s *MemoryStore) ListClearCandidates(ctx context.Context, before time.Time) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var alerts []*models.Alert
	for _, a := range s.alerts {
		if a.Active && a.ClearCandidateAt != nil && !a.ClearCandidateAt.After(before) {
			cp := *a
			if link, ok := s.links[a.DeviceLinkID]; ok {
				lcp := *link
				cp.Link = &lcp
			}
			alerts = append(alerts, &cp)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].ClearCandidateAt.Before(*alerts[j].ClearCandidateAt)
	})
	return alerts, nil
}

func (s *MemoryStore) ClearAlert(ctx context.Context, alertID uuid.UUID, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok || !alert.Active || alert.ClearCandidateAt == nil || alert.ClearCandidateAt.After(cutoff) {
		return false, nil
	}
	delete(s.alerts, alertID)
	return true, nil
}

func (s *MemoryStore) ListActiveAlerts(ctx context.Context, tenantID uuid.UUID) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var alerts []*models.Alert
	for _, a := range s.alerts {
		if a.TenantID == tenantID && a.Active {
			cp := *a
			if link, ok := s.links[a.DeviceLinkID]; ok {
				lcp := *link
				cp.Link = &lcp
			}
			alerts = append(alerts, &cp)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	return alerts, nil
}

func page[T any](items []*T, limit, offset int) []*T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
