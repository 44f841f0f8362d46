// Package memstore is an in-memory repository.Backend. Derivation
// transactions stage their writes and apply them only on commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"emission-service/internal/models"
	"emission-service/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	emails   map[string]string
	sensors  map[string]models.Sensor
	readings map[string]models.Reading
	alerts   map[string]models.Alert
	credits  map[string]models.Credit
	links    []models.CreditReading
}

var _ repository.Backend = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		emails:   make(map[string]string),
		sensors:  make(map[string]models.Sensor),
		readings: make(map[string]models.Reading),
		alerts:   make(map[string]models.Alert),
		credits:  make(map[string]models.Credit),
	}
}

func (s *Store) Close() {}

// WithTx holds the write lock for the duration of fn, so derivations are
// serialised.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.DerivationTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		s:          s,
		readings:   make(map[string]models.Reading),
		alerts:     make(map[string]models.Alert),
		alertLinks: make(map[string]string),
		credits:    make(map[string]models.Credit),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: commit: %v", repository.ErrUnavailable, err)
	}
	t.commit()
	return nil
}

type tx struct {
	s          *Store
	readings   map[string]models.Reading
	alerts     map[string]models.Alert
	alertLinks map[string]string
	credits    map[string]models.Credit
	links      []models.CreditReading
}

func (t *tx) reading(id string) (models.Reading, bool) {
	if r, ok := t.readings[id]; ok {
		return r, true
	}
	r, ok := t.s.readings[id]
	return r, ok
}

func (t *tx) InsertReading(_ context.Context, r *models.Reading) (bool, error) {
	if _, ok := t.reading(r.ID); ok {
		return false, nil
	}
	if _, ok := t.s.sensors[r.SensorID]; !ok {
		return false, fmt.Errorf("sensor %s: %w", r.SensorID, repository.ErrNotFound)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	t.readings[r.ID] = *r
	return true, nil
}

func (t *tx) SensorOwner(_ context.Context, sensorID string) (string, error) {
	sensor, ok := t.s.sensors[sensorID]
	if !ok {
		return "", fmt.Errorf("sensor %s: %w", sensorID, repository.ErrNotFound)
	}
	return sensor.UserID, nil
}

func (t *tx) InsertAlert(_ context.Context, a *models.Alert) error {
	if _, ok := t.alerts[a.ID]; ok {
		return fmt.Errorf("alert %s: %w", a.ID, repository.ErrDuplicate)
	}
	if _, ok := t.s.alerts[a.ID]; ok {
		return fmt.Errorf("alert %s: %w", a.ID, repository.ErrDuplicate)
	}
	t.alerts[a.ID] = *a
	return nil
}

func (t *tx) LinkAlert(_ context.Context, readingID, alertID string) error {
	r, ok := t.reading(readingID)
	if !ok {
		return fmt.Errorf("reading %s: %w", readingID, repository.ErrNotFound)
	}
	if r.AlertID != nil || t.alertLinks[readingID] != "" {
		return fmt.Errorf("reading %s: %w", readingID, repository.ErrAlreadyLinked)
	}
	_, staged := t.alerts[alertID]
	_, committed := t.s.alerts[alertID]
	if !staged && !committed {
		return fmt.Errorf("alert %s: %w", alertID, repository.ErrNotFound)
	}
	t.alertLinks[readingID] = alertID
	return nil
}

func (t *tx) InsertCredit(_ context.Context, c *models.Credit) error {
	if _, ok := t.credits[c.ID]; ok {
		return fmt.Errorf("credit %s: %w", c.ID, repository.ErrDuplicate)
	}
	if _, ok := t.s.credits[c.ID]; ok {
		return fmt.Errorf("credit %s: %w", c.ID, repository.ErrDuplicate)
	}
	t.credits[c.ID] = *c
	return nil
}

func (t *tx) InsertCreditReading(_ context.Context, l models.CreditReading) error {
	_, staged := t.credits[l.CreditID]
	_, committed := t.s.credits[l.CreditID]
	if !staged && !committed {
		return fmt.Errorf("credit %s: %w", l.CreditID, repository.ErrNotFound)
	}
	if _, ok := t.reading(l.ReadingID); !ok {
		return fmt.Errorf("reading %s: %w", l.ReadingID, repository.ErrNotFound)
	}
	for _, links := range [][]models.CreditReading{t.s.links, t.links} {
		for _, existing := range links {
			if existing.CreditID == l.CreditID && existing.ReadingID == l.ReadingID {
				return fmt.Errorf("credit %s reading %s: %w", l.CreditID, l.ReadingID, repository.ErrDuplicate)
			}
		}
	}
	t.links = append(t.links, l)
	return nil
}

func (t *tx) commit() {
	for id, r := range t.readings {
		t.s.readings[id] = r
	}
	for id, a := range t.alerts {
		t.s.alerts[id] = a
	}
	for readingID, alertID := range t.alertLinks {
		r := t.s.readings[readingID]
		linked := alertID
		r.AlertID = &linked
		t.s.readings[readingID] = r
	}
	for id, c := range t.credits {
		t.s.credits[id] = c
	}
	t.s.links = append(t.s.links, t.links...)
}

// Users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.emails[key]; ok {
		return fmt.Errorf("user %s: %w", u.Email, repository.ErrDuplicate)
	}
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, repository.ErrDuplicate)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = *u
	s.emails[key] = u.ID
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, repository.ErrNotFound)
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return &u, nil
}

// Sensors

func (s *Store) CreateSensor(_ context.Context, sensor *models.Sensor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sensors[sensor.ID]; ok {
		return fmt.Errorf("sensor %s: %w", sensor.ID, repository.ErrDuplicate)
	}
	if _, ok := s.users[sensor.UserID]; !ok {
		return fmt.Errorf("user %s: %w", sensor.UserID, repository.ErrNotFound)
	}
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = time.Now().UTC()
	}
	s.sensors[sensor.ID] = *sensor
	return nil
}

func (s *Store) GetSensor(_ context.Context, id string) (*models.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensor, ok := s.sensors[id]
	if !ok {
		return nil, fmt.Errorf("sensor %s: %w", id, repository.ErrNotFound)
	}
	return &sensor, nil
}

func (s *Store) ListSensors(_ context.Context, userID string) ([]models.Sensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := []models.Sensor{}
	for _, sensor := range s.sensors {
		if sensor.UserID == userID {
			list = append(list, sensor)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Queries

func (s *Store) owned(userID string) map[string]models.Sensor {
	out := make(map[string]models.Sensor)
	for id, sensor := range s.sensors {
		if sensor.UserID == userID {
			out[id] = sensor
		}
	}
	return out
}

// ownedCredits returns each credit linked to a reading of userID's sensors,
// once.
func (s *Store) ownedCredits(userID string) []models.Credit {
	sensors := s.owned(userID)
	seen := make(map[string]bool)
	var out []models.Credit
	for _, l := range s.links {
		r, ok := s.readings[l.ReadingID]
		if !ok {
			continue
		}
		if _, mine := sensors[r.SensorID]; !mine || seen[l.CreditID] {
			continue
		}
		c, ok := s.credits[l.CreditID]
		if !ok {
			continue
		}
		seen[l.CreditID] = true
		out = append(out, c)
	}
	return out
}

func (s *Store) RecentReadings(_ context.Context, userID string, limit int) ([]models.RecentReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensors := s.owned(userID)
	list := []models.RecentReading{}
	for _, r := range s.readings {
		sensor, ok := sensors[r.SensorID]
		if !ok {
			continue
		}
		list = append(list, models.RecentReading{Reading: r, Location: sensor.Location, SensorType: sensor.Type})
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.After(list[j].Timestamp)
		}
		return list[i].ID > list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Store) DashboardStats(_ context.Context, userID string) (models.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.DashboardStats
	sensors := s.owned(userID)

	var latest *models.Reading
	for _, r := range s.readings {
		if _, ok := sensors[r.SensorID]; !ok {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) ||
			(r.Timestamp.Equal(latest.Timestamp) && r.ID > latest.ID) {
			cur := r
			latest = &cur
		}
	}
	if latest != nil {
		stats.CurrentCO2 = latest.CO2Value
	}
	for _, c := range s.ownedCredits(userID) {
		stats.TotalCredits += c.Amount
	}
	for _, sensor := range sensors {
		if sensor.Status == models.SensorStatusActive {
			stats.ActiveSensors++
		}
	}
	for _, a := range s.alerts {
		if a.UserID == userID && !a.Read {
			stats.UnreadAlerts++
		}
	}
	return stats, nil
}

func (s *Store) AlertsByUser(_ context.Context, userID string, limit int) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := []models.Alert{}
	for _, a := range s.alerts {
		if a.UserID == userID {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *Store) MonthlyCredits(_ context.Context, userID string) ([]models.MonthlyCredits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byMonth := make(map[string]*models.MonthlyCredits)
	for _, c := range s.ownedCredits(userID) {
		month := c.CalculatedAt.UTC().Format("2006-01")
		m, ok := byMonth[month]
		if !ok {
			m = &models.MonthlyCredits{Month: month}
			byMonth[month] = m
		}
		if c.Amount > 0 {
			m.Earned += c.Amount
		} else if c.Amount < 0 {
			m.Deficit += -c.Amount
		}
		m.Net += c.Amount
		m.Calculations++
	}
	list := make([]models.MonthlyCredits, 0, len(byMonth))
	for _, m := range byMonth {
		list = append(list, *m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Month > list[j].Month })
	return list, nil
}

func (s *Store) SetAlertRead(_ context.Context, userID, alertID string, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok || a.UserID != userID {
		return fmt.Errorf("alert %s: %w", alertID, repository.ErrNotFound)
	}
	a.Read = read
	s.alerts[alertID] = a
	return nil
}

// Snapshot counts of stored entities, for tests and diagnostics.
type Counts struct {
	Readings, Alerts, Credits, Links int
}

func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Readings: len(s.readings),
		Alerts:   len(s.alerts),
		Credits:  len(s.credits),
		Links:    len(s.links),
	}
}

// Reading returns a stored reading by id.
func (s *Store) Reading(id string) (models.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[id]
	return r, ok
}

// Links returns a copy of all credit-reading links.
func (s *Store) Links() []models.CreditReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CreditReading(nil), s.links...)
}
