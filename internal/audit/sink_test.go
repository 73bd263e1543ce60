package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidar/tenant-purge/internal/domain"
)

type memoryRepo struct {
	events []domain.AuditEvent
	err    error
}

func (r *memoryRepo) Append(_ context.Context, event domain.AuditEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRepo) ListByRun(_ context.Context, runID string) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	for _, e := range r.events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestSinkRecord(t *testing.T) {
	var buf bytes.Buffer
	repo := &memoryRepo{}
	sink := NewSink(repo, jsonLogger(&buf))

	event := domain.AuditEvent{
		RunID:       "run-1",
		PrincipalID: "u1",
		Phase:       domain.PhaseResourceTeardown,
		Kind:        domain.AuditPhaseFailed,
		Detail:      "remote teardown failed",
		At:          time.Now(),
	}
	sink.Record(context.Background(), event)

	require.Len(t, repo.events, 1)
	assert.Equal(t, event, repo.events[0])

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "ResourceTeardown", line["phase"])
}

func TestSinkRecordSurvivesStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&memoryRepo{err: errors.New("connection refused")}, jsonLogger(&buf))

	assert.NotPanics(t, func() {
		sink.Record(context.Background(), domain.AuditEvent{RunID: "run-2", Kind: domain.AuditRunStarted})
	})
	assert.Contains(t, buf.String(), "Failed to append audit event")
}

func TestSinkWithoutRepository(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(nil, jsonLogger(&buf))

	sink.Record(context.Background(), domain.AuditEvent{RunID: "run-3", Kind: domain.AuditEdgeCase})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"WARN"`)
}
