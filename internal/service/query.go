package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"sensor_gateway/internal/models"
	"sensor_gateway/internal/store"
)

// DefaultHistoryLimit applies when a history query does not ask for a positive limit.
const DefaultHistoryLimit = 100

// HistoryFilter narrows a history query. Only NodeID is required.
type HistoryFilter struct {
	NodeID    string
	Limit     int
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM or HH:MM:SS, inclusive
	EndTime   string // HH:MM or HH:MM:SS, inclusive
}

// StatsFilter selects daily aggregates; both fields are optional.
type StatsFilter struct {
	NodeID string
	Date   string // YYYY-MM-DD
}

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

type QueryService struct {
	store *store.Store
}

func NewQueryService(st *store.Store) *QueryService {
	return &QueryService{store: st}
}

var _ Query = (*QueryService)(nil)

// Nodes returns the latest reading of every node, ordered by id.
func (s *QueryService) Nodes(_ context.Context) ([]models.Reading, error) {
	return s.store.Devices(), nil
}

// Node returns the latest reading of one node.
func (s *QueryService) Node(_ context.Context, id string) (models.Reading, error) {
	r, ok := s.store.Device(id)
	if !ok {
		return models.Reading{}, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return r, nil
}

// Recent returns up to n of the newest readings across all nodes, oldest-first.
func (s *QueryService) Recent(_ context.Context, n int) ([]models.Reading, error) {
	return s.store.RecentHistory(n), nil
}

// History returns the last f.Limit readings of f.NodeID that match the date
// and time-of-day window, in arrival order. Time bounds compare as strings
// against the reading's HH:MM:SS, so an end bound of "10:00" excludes 10:00:30.
func (s *QueryService) History(_ context.Context, f HistoryFilter) ([]models.Reading, error) {
	f.NodeID = strings.TrimSpace(f.NodeID)
	if f.NodeID == "" {
		return nil, fmt.Errorf("%w: nodeId is required", ErrValidation)
	}
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if err := validateDate(f.Date); err != nil {
		return nil, err
	}
	for _, tod := range []string{f.StartTime, f.EndTime} {
		if tod != "" && !timeOfDayRe.MatchString(tod) {
			return nil, fmt.Errorf("%w: time %q must be HH:MM or HH:MM:SS", ErrValidation, tod)
		}
	}
	if f.StartTime != "" && f.EndTime != "" && f.StartTime > f.EndTime {
		return nil, fmt.Errorf("%w: startTime %s is after endTime %s", ErrValidation, f.StartTime, f.EndTime)
	}

	matches := s.store.FilterHistory(func(r models.Reading) bool {
		if r.ID != f.NodeID {
			return false
		}
		if f.Date != "" && s.store.DateOf(r.Timestamp) != f.Date {
			return false
		}
		if f.StartTime == "" && f.EndTime == "" {
			return true
		}
		tod := s.store.TimeOfDay(r.Timestamp)
		if f.StartTime != "" && tod < f.StartTime {
			return false
		}
		if f.EndTime != "" && tod > f.EndTime {
			return false
		}
		return true
	})

	if len(matches) > f.Limit {
		matches = matches[len(matches)-f.Limit:]
	}
	if matches == nil {
		matches = []models.Reading{}
	}
	return matches, nil
}

// DailyStats resolves a stats query:
//   - node and date: exactly that aggregate, or ErrNotFound
//   - node only: every day of that node, newest first, or ErrNotFound
//   - date only: every node's aggregate for that date
//   - neither: every node's aggregate for today
func (s *QueryService) DailyStats(_ context.Context, f StatsFilter) ([]models.DailyStat, error) {
	f.NodeID = strings.TrimSpace(f.NodeID)
	if err := validateDate(f.Date); err != nil {
		return nil, err
	}

	switch {
	case f.NodeID != "" && f.Date != "":
		st, ok := s.store.DailyStat(f.NodeID, f.Date)
		if !ok {
			return nil, fmt.Errorf("%w: no statistics for %s on %s", ErrNotFound, f.NodeID, f.Date)
		}
		return []models.DailyStat{st}, nil

	case f.NodeID != "":
		stats := s.store.DailyStats(func(st models.DailyStat) bool { return st.NodeID == f.NodeID })
		if len(stats) == 0 {
			return nil, fmt.Errorf("%w: no statistics for node %s", ErrNotFound, f.NodeID)
		}
		sort.Slice(stats, func(i, j int) bool { return stats[i].Date > stats[j].Date })
		return stats, nil

	default:
		date := f.Date
		if date == "" {
			date = s.Today()
		}
		return s.store.DailyStats(func(st models.DailyStat) bool { return st.Date == date }), nil
	}
}

// Stats reports the size of the in-memory views.
func (s *QueryService) Stats(_ context.Context) (store.Counts, error) {
	return s.store.Counts(), nil
}

// Today returns the current calendar date in the store's zone.
func (s *QueryService) Today() string {
	return s.store.DateOf(s.store.Now())
}

func validateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, date)
	}
	return nil
}
