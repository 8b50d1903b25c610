package domain

import (
	"time"

	"github.com/google/uuid"
)

// CycleRunStatus captures how a scheduler cycle ended.
type CycleRunStatus string

const (
	CycleRunStatusCompleted CycleRunStatus = "COMPLETED"
	CycleRunStatusSkipped   CycleRunStatus = "SKIPPED"
	CycleRunStatusFailed    CycleRunStatus = "FAILED"
)

// CycleRun is the audit entry written for every scheduler cycle.
type CycleRun struct {
	ID           uuid.UUID      `json:"id"`
	Shift        Shift          `json:"shift"`
	Status       CycleRunStatus `json:"status"`
	Stage        string         `json:"stage,omitempty"`
	Families     int            `json:"families"`
	Records      int            `json:"records"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// NewCycleRun starts a run entry for the given shift.
func NewCycleRun(shift Shift, startedAt time.Time) CycleRun {
	return CycleRun{
		ID:        uuid.New(),
		Shift:     shift,
		StartedAt: startedAt,
	}
}

// Fail marks the run as failed at the given stage.
func (r CycleRun) Fail(stage string, err error, at time.Time) CycleRun {
	r.Status = CycleRunStatusFailed
	r.Stage = stage
	if err != nil {
		msg := err.Error()
		r.ErrorMessage = &msg
	}
	r.FinishedAt = at
	return r
}
