package migration

import (
	"context"

	"github.com/google/uuid"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/progress"
)

// ExecuteOnly runs already-created tasks by id, bypassing the channel
// steps. Every id gets a result; failures do not stop the remaining ids.
// Once ctx is cancelled the remaining ids are recorded as failed without
// being sent.
func (o *Orchestrator) ExecuteOnly(ctx context.Context, selector domain.TaskSelector, admin omeka.Credentials) []domain.ExecutionResult {
	repo := o.repo.As(admin)
	var reportPath string
	if o.store != nil {
		reportPath = o.store.Path()
	}
	run := domain.MigrationRun{
		ID:         uuid.New().String(),
		Phase:      domain.RunPhaseExecuteOnly,
		ReportPath: reportPath,
		Status:     "in_progress",
		Total:      len(selector.Tasks),
		CreatedAt:  o.now(),
		UpdatedAt:  o.now(),
	}
	o.notify(ctx, progress.Event{Kind: progress.RunStarted, Run: run})

	results := make([]domain.ExecutionResult, 0, len(selector.Tasks))
	for i, taskID := range selector.Tasks {
		log := o.logger.With("index", i+1, "total", len(selector.Tasks), "task_id", taskID)
		result := domain.ExecutionResult{TaskID: taskID, Status: domain.StatusError}
		if err := ctx.Err(); err != nil {
			result.Error = domain.StringPtr(err.Error())
			results = append(results, result)
			run.Failed++
			continue
		}

		exec, err := repo.ExecuteTask(ctx, taskID)
		if err != nil {
			log.Error("task execution failed", "error", err)
			result.Error = domain.StringPtr(err.Error())
			run.Failed++
		} else {
			log.Info("task executed", "job_id", exec.JobID, "new_task_id", exec.NewTaskID)
			result.Status = domain.StatusSuccess
			result.JobID = domain.IntPtr(exec.JobID)
			result.NewTaskID = domain.IntPtr(exec.NewTaskID)
			run.Succeeded++
		}
		results = append(results, result)
	}

	o.finish(ctx, run, ctx.Err())
	return results
}
