package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Plan statuses.
const (
	PlanActive   = "ACTIVE"
	PlanInactive = "INACTIVE"
	PlanArchived = "ARCHIVED"
)

// Execution statuses.
const (
	ExecutionInProgress = "IN_PROGRESS"
	ExecutionCompleted  = "COMPLETED"
	ExecutionCancelled  = "CANCELLED"
)

// Exercise is a prescribed item of a training plan.
type Exercise struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	MuscleGroup string    `json:"muscleGroup,omitempty"`
	Sets        int       `json:"sets"`
	Reps        string    `json:"reps"`
	LoadKg      float64   `json:"loadKg,omitempty"`
	RestSeconds int       `json:"restSeconds,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// TrainingPlan is a plan an instructor assigns to a student.
type TrainingPlan struct {
	ID           uuid.UUID  `json:"id"`
	StudentID    uuid.UUID  `json:"studentId"`
	InstructorID uuid.UUID  `json:"instructorId"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Status       string     `json:"status"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      time.Time  `json:"endDate"`
	Exercises    []Exercise `json:"exercises"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ExerciseLog records what was actually done for one exercise.
type ExerciseLog struct {
	ExerciseID    uuid.UUID `json:"exerciseId"`
	SetsCompleted int       `json:"setsCompleted"`
	Reps          string    `json:"reps,omitempty"`
	LoadKg        float64   `json:"loadKg,omitempty"`
	Done          bool      `json:"done"`
}

// TrainingExecution is one workout performed against a plan.
type TrainingExecution struct {
	ID         uuid.UUID     `json:"id"`
	PlanID     uuid.UUID     `json:"trainingPlanId"`
	StudentID  uuid.UUID     `json:"studentId"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Logs       []ExerciseLog `json:"exercises"`
	Notes      string        `json:"notes,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}
