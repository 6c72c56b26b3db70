package training

import (
	"encoding/json"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/model"
)

// PlanCodec stores plans by student, status and validity window.
type PlanCodec struct{}

func (PlanCodec) Row(p model.TrainingPlan) (cache.Row, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return cache.Row{}, err
	}
	return cache.Row{
		ID:        p.ID.String(),
		OwnerID:   p.StudentID.String(),
		Status:    p.Status,
		StartDate: millis(p.StartDate),
		EndDate:   millis(p.EndDate),
		UpdatedAt: millis(p.UpdatedAt),
		Payload:   payload,
	}, nil
}

func (PlanCodec) Decode(payload []byte) (model.TrainingPlan, error) {
	var p model.TrainingPlan
	err := json.Unmarshal(payload, &p)
	return p, err
}

// ExecutionCodec stores executions by student, status and start time.
type ExecutionCodec struct{}

func (ExecutionCodec) Row(e model.TrainingExecution) (cache.Row, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return cache.Row{}, err
	}
	var end int64
	if e.FinishedAt != nil {
		end = millis(*e.FinishedAt)
	}
	return cache.Row{
		ID:        e.ID.String(),
		OwnerID:   e.StudentID.String(),
		Status:    e.Status,
		StartDate: millis(e.StartedAt),
		EndDate:   end,
		UpdatedAt: millis(e.UpdatedAt),
		Payload:   payload,
	}, nil
}

func (ExecutionCodec) Decode(payload []byte) (model.TrainingExecution, error) {
	var e model.TrainingExecution
	err := json.Unmarshal(payload, &e)
	return e, err
}
