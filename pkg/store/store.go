// Package store keeps a local history of submitted jobs and how they ended.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/psantana5/dreamina/pkg/models"
)

// StateSubmitted marks an entry whose outcome is not known yet.
const StateSubmitted = "submitted"

var (
	ErrNotFound            = errors.New("job not found in history")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// Entry is one submitted job.
type Entry struct {
	ID        string           `json:"id" yaml:"id"`
	Handle    models.JobHandle `json:"handle" yaml:"handle"`
	Kind      models.Kind      `json:"kind" yaml:"kind"`
	Prompt    string           `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	State     string           `json:"state" yaml:"state"`
	Reason    string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	URLs      []string         `json:"urls,omitempty" yaml:"urls,omitempty"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
}

// Store persists history entries. Implementations are safe for concurrent use.
type Store interface {
	// Record inserts e, assigning ID and timestamps when unset.
	Record(ctx context.Context, e Entry) (Entry, error)
	// UpdateOutcome sets the terminal state of the entry for handle.
	UpdateOutcome(ctx context.Context, handle models.JobHandle, state, reason string, urls []string) error
	Get(ctx context.Context, handle models.JobHandle) (Entry, error)
	// List returns the newest entries first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Config selects a backend.
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // file path for sqlite, connection string for postgres

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgresStore(cfg)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

// PromptOf returns the prompt carried by req, if any.
func PromptOf(req models.JobRequest) string {
	switch r := req.(type) {
	case models.TextToImageRequest:
		return r.Prompt
	case models.ImageEditRequest:
		return r.Prompt
	case models.ImageToVideoRequest:
		return r.Prompt
	case models.StartEndToVideoRequest:
		return r.Prompt
	}
	return ""
}
