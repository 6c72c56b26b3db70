// Package training holds the synced training plan and execution repositories.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/fitsync/internal/cache"
	"github.com/and161185/fitsync/internal/errs"
	"github.com/and161185/fitsync/internal/model"
	"github.com/and161185/fitsync/internal/result"
	"github.com/and161185/fitsync/internal/syncrepo"
)

// Query narrows a list read. Zero fields do not filter.
type Query struct {
	StudentID uuid.UUID
	Status    string
	From      time.Time
	To        time.Time
}

func (q Query) filter() cache.Filter {
	f := cache.Filter{Status: q.Status, From: q.From, To: q.To}
	if q.StudentID != uuid.Nil {
		f.OwnerID = q.StudentID.String()
	}
	return f
}

// Plans reads and updates training plans.
type Plans struct {
	repo  *syncrepo.Repository[model.TrainingPlan]
	clock func() time.Time
}

// NewPlans constructs Plans over the plan table.
func NewPlans(store cache.Store, remote syncrepo.Remote[model.TrainingPlan], log *zap.Logger) *Plans {
	return &Plans{
		repo:  syncrepo.New[model.TrainingPlan](cache.TablePlans, store, PlanCodec{}, remote, log),
		clock: time.Now,
	}
}

// List emits the cached plans and then the remote ones.
func (p *Plans) List(ctx context.Context, q Query) <-chan []model.TrainingPlan {
	return p.repo.Entities(ctx, q.filter())
}

// Get returns one plan, offline when cached.
func (p *Plans) Get(ctx context.Context, id uuid.UUID) result.Result[model.TrainingPlan] {
	return p.repo.ByID(ctx, id.String())
}

// SetStatus changes a plan's status through the local-first write path.
func (p *Plans) SetStatus(ctx context.Context, id uuid.UUID, status string) result.Result[model.TrainingPlan] {
	switch status {
	case model.PlanActive, model.PlanInactive, model.PlanArchived:
	default:
		return result.Failure[model.TrainingPlan](fmt.Errorf("plan status %q: %w", status, errs.ErrValidation))
	}
	plan, err := p.Get(ctx, id).Get()
	if err != nil {
		return result.Failure[model.TrainingPlan](err)
	}
	plan.Status = status
	plan.UpdatedAt = p.clock().UTC()
	return p.repo.Mutate(ctx, id.String(), plan)
}

// Wait blocks until detached list fetches are done.
func (p *Plans) Wait() { p.repo.Wait() }

// Executions records workouts performed against plans.
type Executions struct {
	repo  *syncrepo.Repository[model.TrainingExecution]
	clock func() time.Time
}

// NewExecutions constructs Executions over the execution table.
func NewExecutions(store cache.Store, remote syncrepo.Remote[model.TrainingExecution], log *zap.Logger) *Executions {
	return &Executions{
		repo:  syncrepo.New[model.TrainingExecution](cache.TableExecutions, store, ExecutionCodec{}, remote, log),
		clock: time.Now,
	}
}

// List emits the cached executions and then the remote ones.
func (e *Executions) List(ctx context.Context, q Query) <-chan []model.TrainingExecution {
	return e.repo.Entities(ctx, q.filter())
}

// Get returns one execution, offline when cached.
func (e *Executions) Get(ctx context.Context, id uuid.UUID) result.Result[model.TrainingExecution] {
	return e.repo.ByID(ctx, id.String())
}

// Start opens an execution of plan with a client generated id, one log per exercise. The new
// execution is cached even when the remote call fails.
func (e *Executions) Start(ctx context.Context, plan model.TrainingPlan) result.Result[model.TrainingExecution] {
	if plan.Status != model.PlanActive {
		return result.Failure[model.TrainingExecution](fmt.Errorf("plan is %s: %w", plan.Status, errs.ErrValidation))
	}
	id, err := uuid.NewV4()
	if err != nil {
		return result.Failure[model.TrainingExecution](err)
	}
	now := e.clock().UTC()
	logs := make([]model.ExerciseLog, 0, len(plan.Exercises))
	for _, ex := range plan.Exercises {
		logs = append(logs, model.ExerciseLog{ExerciseID: ex.ID, Reps: ex.Reps, LoadKg: ex.LoadKg})
	}
	exec := model.TrainingExecution{
		ID:        id,
		PlanID:    plan.ID,
		StudentID: plan.StudentID,
		Status:    model.ExecutionInProgress,
		StartedAt: now,
		Logs:      logs,
		UpdatedAt: now,
	}
	return e.repo.Mutate(ctx, id.String(), exec)
}

// Finish closes an in-progress execution as completed.
func (e *Executions) Finish(ctx context.Context, id uuid.UUID, notes string) result.Result[model.TrainingExecution] {
	return e.finishAs(ctx, id, model.ExecutionCompleted, notes)
}

// Cancel closes an in-progress execution as cancelled.
func (e *Executions) Cancel(ctx context.Context, id uuid.UUID) result.Result[model.TrainingExecution] {
	return e.finishAs(ctx, id, model.ExecutionCancelled, "")
}

func (e *Executions) finishAs(ctx context.Context, id uuid.UUID, status, notes string) result.Result[model.TrainingExecution] {
	exec, err := e.Get(ctx, id).Get()
	if err != nil {
		return result.Failure[model.TrainingExecution](err)
	}
	if exec.Status != model.ExecutionInProgress {
		return result.Failure[model.TrainingExecution](fmt.Errorf("execution is %s: %w", exec.Status, errs.ErrValidation))
	}
	now := e.clock().UTC()
	exec.Status = status
	exec.FinishedAt = &now
	exec.UpdatedAt = now
	if notes != "" {
		exec.Notes = notes
	}
	return e.repo.Mutate(ctx, id.String(), exec)
}

// Wait blocks until detached list fetches are done.
func (e *Executions) Wait() { e.repo.Wait() }

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
