package service

import (
	"context"
	"errors"
	"time"

	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/models"
	"sensor_gateway/internal/repository"
	"sensor_gateway/internal/store"
	"sensor_gateway/internal/transport"
)

// Errors callers map onto transport-level status codes.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrTransportUnavailable = errors.New("transport unavailable")
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Query answers read-only questions about nodes, history and daily aggregates.
type Query interface {
	Nodes(ctx context.Context) ([]models.Reading, error)
	Node(ctx context.Context, id string) (models.Reading, error)
	History(ctx context.Context, f HistoryFilter) ([]models.Reading, error)
	Recent(ctx context.Context, n int) ([]models.Reading, error)
	DailyStats(ctx context.Context, f StatsFilter) ([]models.DailyStat, error)
	Stats(ctx context.Context) (store.Counts, error)
	Today() string
}

// Commander delivers outbound commands to the radio link.
type Commander interface {
	Send(ctx context.Context, cmd models.Command) error
	Connected() bool
}

// Persistence saves and restores the daily aggregates.
type Persistence interface {
	Load(ctx context.Context) error
	Save(ctx context.Context) error
	Cleanup(ctx context.Context) (int, error)
}

// Ingest owns the transport read loop. Stop via context cancellation.
type Ingest interface {
	Run(ctx context.Context) error
}

type Service struct {
	Query
	Commander
	Persistence
	Ingest
	Authorization
}

// Deps carries everything NewService needs besides the repositories and the store.
type Deps struct {
	Opener        transport.Opener
	Sinks         []Sink
	Log           *logger.Logger
	Ingest        IngestOptions
	RetentionDays int
	Auth          AuthOptions
}

// NewService wires the repository layer and the in-memory store into concrete
// services. Authorization is left nil when no operator store is configured.
func NewService(repos *repository.Repository, st *store.Store, deps Deps) *Service {
	commands := NewCommandService(deps.Log)
	svc := &Service{
		Query:       NewQueryService(st),
		Commander:   commands,
		Persistence: NewPersistenceService(repos.Snapshot, st, deps.RetentionDays, deps.Log),
		Ingest:      NewIngestService(deps.Opener, st, commands, deps.Sinks, deps.Ingest, deps.Log),
	}
	if repos.Operators != nil {
		svc.Authorization = NewAuthService(repos.Operators, deps.Auth)
	}
	return svc
}

// uptimeSince is the process start, reported by the status endpoint.
var uptimeSince = time.Now()

// Uptime returns how long the process has been running.
func Uptime() time.Duration { return time.Since(uptimeSince) }
