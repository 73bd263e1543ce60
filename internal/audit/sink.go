// Package audit records the lifecycle of deletion runs in the append-only
// audit table and the structured log.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aidar/tenant-purge/internal/domain"
	"github.com/aidar/tenant-purge/internal/repository"
)

// Sink writes every event to the log and to the audit repository. A failed
// append is logged and otherwise ignored.
type Sink struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewSink creates a new Sink. repo may be nil, in which case events only go
// to the log.
func NewSink(repo repository.AuditRepository, logger *slog.Logger) *Sink {
	return &Sink{repo: repo, logger: logger}
}

// Record implements saga.AuditSink
func (s *Sink) Record(ctx context.Context, event domain.AuditEvent) {
	attrs := []any{
		"run_id", event.RunID,
		"principal_id", event.PrincipalID,
		"kind", event.Kind,
	}
	if event.Phase != "" {
		attrs = append(attrs, "phase", event.Phase)
	}
	if event.Detail != "" {
		attrs = append(attrs, "detail", event.Detail)
	}
	s.logger.Log(ctx, level(event.Kind), "Audit event", attrs...)

	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.repo.Append(ctx, event); err != nil {
		s.logger.Error("Failed to append audit event", "run_id", event.RunID, "kind", event.Kind, "error", err)
	}
}

func level(kind domain.AuditKind) slog.Level {
	switch kind {
	case domain.AuditPhaseFailed, domain.AuditRollbackError:
		return slog.LevelError
	case domain.AuditEdgeCase, domain.AuditRolledBack:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
