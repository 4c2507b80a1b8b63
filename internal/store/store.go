// Package store owns the gateway's in-memory views: latest reading per node,
// the rolling history and the per-day aggregates. All three change together
// under one lock so readers never observe them out of step.
package store

import (
	"sort"
	"sync"
	"time"

	"sensor_gateway/internal/models"
)

// Store is safe for one writer and many concurrent readers.
type Store struct {
	mu      sync.RWMutex
	devices map[string]models.Reading
	history *History
	daily   map[models.StatKey]*models.DailyStat

	loc *time.Location
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the zone used to derive calendar dates and times of day.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store whose history holds at most historyCapacity readings.
func New(historyCapacity int, opts ...Option) *Store {
	s := &Store{
		devices: make(map[string]models.Reading),
		history: NewHistory(historyCapacity),
		daily:   make(map[models.StatKey]*models.DailyStat),
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the zone used for calendar computations.
func (s *Store) Location() *time.Location { return s.loc }

// Now returns the store clock's current instant.
func (s *Store) Now() time.Time { return s.now() }

// DateOf returns the YYYY-MM-DD calendar date of t in the store's zone.
func (s *Store) DateOf(t time.Time) string { return t.In(s.loc).Format(models.DateLayout) }

// TimeOfDay returns the HH:MM:SS time of t in the store's zone.
func (s *Store) TimeOfDay(t time.Time) string { return t.In(s.loc).Format(time.TimeOnly) }

// Apply stamps r with the ingestion instant and records it in every view.
// It returns the stamped copy that was stored.
func (s *Store) Apply(r models.Reading) models.Reading {
	now := s.now()
	r = r.Clone()
	r.ReceivedAt = now
	r.Timestamp = now

	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[r.ID] = r
	s.history.Push(r)
	if r.HasClimate() && !r.IsAck() {
		s.aggregate(r)
	}
	return r.Clone()
}

// aggregate folds r into its (node, day) stat. Only strictly more extreme
// values move an extremum, so the earliest instant of a tie is kept.
func (s *Store) aggregate(r models.Reading) {
	temp, hum, ts := *r.Temp, *r.Hum, r.Timestamp
	key := models.StatKey{NodeID: r.ID, Date: s.DateOf(ts)}

	st, ok := s.daily[key]
	if !ok {
		s.daily[key] = &models.DailyStat{
			Date:        key.Date,
			NodeID:      key.NodeID,
			TempMax:     temp,
			TempMin:     temp,
			HumMax:      hum,
			HumMin:      hum,
			TempMaxTime: ts,
			TempMinTime: ts,
			HumMaxTime:  ts,
			HumMinTime:  ts,
			Count:       1,
			FirstRecord: ts,
			LastRecord:  ts,
		}
		return
	}

	if temp > st.TempMax {
		st.TempMax, st.TempMaxTime = temp, ts
	}
	if temp < st.TempMin {
		st.TempMin, st.TempMinTime = temp, ts
	}
	if hum > st.HumMax {
		st.HumMax, st.HumMaxTime = hum, ts
	}
	if hum < st.HumMin {
		st.HumMin, st.HumMinTime = hum, ts
	}
	st.Count++
	st.LastRecord = ts
}

// Device returns the latest reading for id.
func (s *Store) Device(id string) (models.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.devices[id]
	if !ok {
		return models.Reading{}, false
	}
	return r.Clone(), true
}

// Devices returns the latest reading of every node, ordered by id.
func (s *Store) Devices() []models.Reading {
	s.mu.RLock()
	out := make([]models.Reading, 0, len(s.devices))
	for _, r := range s.devices {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecentHistory returns up to n of the newest history entries, oldest-first.
// n <= 0 returns the whole history.
func (s *Store) RecentHistory(n int) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Last(n)
}

// FilterHistory returns the history entries accepted by keep, oldest-first.
func (s *Store) FilterHistory(keep func(models.Reading) bool) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Reading
	s.history.Each(func(r models.Reading) bool {
		if keep(r) {
			out = append(out, r.Clone())
		}
		return true
	})
	return out
}

// DailyStat returns the aggregate for one node and date.
func (s *Store) DailyStat(nodeID, date string) (models.DailyStat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.daily[models.StatKey{NodeID: nodeID, Date: date}]
	if !ok {
		return models.DailyStat{}, false
	}
	return *st, true
}

// DailyStats returns a point-in-time copy of the aggregates accepted by keep
// (all of them when keep is nil), ordered by node then date.
func (s *Store) DailyStats(keep func(models.DailyStat) bool) []models.DailyStat {
	s.mu.RLock()
	out := make([]models.DailyStat, 0, len(s.daily))
	for _, st := range s.daily {
		if keep == nil || keep(*st) {
			out = append(out, *st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// ReplaceDailyStats rebuilds the aggregate map from a snapshot.
// Later duplicates of the same key win.
func (s *Store) ReplaceDailyStats(stats []models.DailyStat) {
	daily := make(map[models.StatKey]*models.DailyStat, len(stats))
	for i := range stats {
		st := stats[i]
		daily[st.Key()] = &st
	}

	s.mu.Lock()
	s.daily = daily
	s.mu.Unlock()
}

// PruneBefore removes every aggregate dated strictly before cutoff (YYYY-MM-DD)
// and returns how many were removed.
func (s *Store) PruneBefore(cutoff string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.daily {
		if key.Date < cutoff {
			delete(s.daily, key)
			removed++
		}
	}
	return removed
}

// Counts reports the size of each view.
type Counts struct {
	Nodes      int `json:"nodes"`
	History    int `json:"historySize"`
	DailyStats int `json:"dailyStatsCount"`
}

// Counts returns the current size of each view.
func (s *Store) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{
		Nodes:      len(s.devices),
		History:    s.history.Len(),
		DailyStats: len(s.daily),
	}
}
