package domain

import "time"

// RunPhase identifies which stage of the pipeline produced a run
type RunPhase string

const (
	RunPhaseStructure   RunPhase = "structure"
	RunPhaseExecution   RunPhase = "execution"
	RunPhaseExecuteOnly RunPhase = "execute_only"
)

// MigrationRun is one invocation of the orchestrator or the task runner
type MigrationRun struct {
	ID         string    `json:"id"`
	Phase      RunPhase  `json:"phase"`
	ReportPath string    `json:"report_path"`
	Status     string    `json:"status"` // "in_progress", "completed", "failed"
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OutcomeRecord is a channel outcome as journaled by one run
type OutcomeRecord struct {
	RunID      string           `json:"run_id"`
	Position   int              `json:"position"`
	RecordedAt time.Time        `json:"recorded_at"`
	Outcome    MigrationOutcome `json:"outcome"`
}

// TaskSelector names bulk-import tasks to execute directly, bypassing channels
type TaskSelector struct {
	Tasks []int `json:"tasks"`
}

// ExecutionResult is the outcome of executing one task in execute-only mode
type ExecutionResult struct {
	TaskID    int     `json:"task_id"`
	JobID     *int    `json:"job_id"`
	NewTaskID *int    `json:"new_task_id,omitempty"`
	Status    Status  `json:"status"`
	Error     *string `json:"error,omitempty"`
}
