package domain

import (
	"errors"
	"fmt"
)

// EntityCount представляет количество сущностей одного вида
type EntityCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// PreviewResult описывает, что шаг сделает, без побочных эффектов
type PreviewResult struct {
	Phase        PhaseName     `json:"phase"`
	Summary      string        `json:"summary"`
	Counts       []EntityCount `json:"counts"`
	Entities     []string      `json:"entities"`
	Irreversible bool          `json:"irreversible"`
}

// ExecuteResult описывает, что шаг фактически изменил
type ExecuteResult struct {
	Phase        PhaseName     `json:"phase"`
	Counts       []EntityCount `json:"counts"`
	RemoteIssued []string      `json:"remote_issued,omitempty"`
	Cancelled    []string      `json:"cancelled,omitempty"`
	Inactive     []string      `json:"already_inactive,omitempty"`
	Failed       []string      `json:"failed,omitempty"`
}

// Add увеличивает счетчик сущностей вида kind
func (r *ExecuteResult) Add(kind string, n int) {
	for i := range r.Counts {
		if r.Counts[i].Kind == kind {
			r.Counts[i].Count += n
			return
		}
	}
	r.Counts = append(r.Counts, EntityCount{Kind: kind, Count: n})
}

// FailureClass классифицирует ошибку шага по домену отказа
type FailureClass string

// Классы ошибок шагов
const (
	FailureLocal    FailureClass = "local"
	FailureRemote   FailureClass = "remote"
	FailureBilling  FailureClass = "billing"
	FailureRollback FailureClass = "rollback"
)

// PhaseError представляет ошибку шага с указанием источника
type PhaseError struct {
	Phase   PhaseName
	Class   FailureClass
	Message string
	Err     error
}

func (e *PhaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s): %s", e.Phase, e.Class, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s: %v", e.Phase, e.Class, e.Message, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError создает ошибку шага
func NewPhaseError(phase PhaseName, class FailureClass, message string, err error) *PhaseError {
	return &PhaseError{Phase: phase, Class: class, Message: message, Err: err}
}

// AsPhaseError извлекает PhaseError из цепочки ошибок
func AsPhaseError(err error) (*PhaseError, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
