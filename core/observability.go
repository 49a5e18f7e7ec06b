package core

import "time"

// TaskExecutionRecord captures a finished task.
type TaskExecutionRecord struct {
	TaskID      TaskID        `json:"task_id"`
	Name        string        `json:"name"`
	ManagerName string        `json:"manager_name"`
	Status      TaskStatus    `json:"status"`
	Err         string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration_ns"`
	Panicked    bool          `json:"panicked"`
}

// TaskStats is a point-in-time view of one live task handle.
type TaskStats struct {
	ID        TaskID        `json:"id"`
	Name      string        `json:"name"`
	Status    TaskStatus    `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Age       time.Duration `json:"age_ns"`
}

// ManagerStats represents runtime observability state for a TaskManager.
type ManagerStats struct {
	Name           string    `json:"name"`
	Live           int       `json:"live"`
	Created        int64     `json:"created"`
	Succeeded      int64     `json:"succeeded"`
	Cancelled      int64     `json:"cancelled"`
	Failed         int64     `json:"failed"`
	WaitTimeouts   int64     `json:"wait_timeouts"`
	DoubleReleases int64     `json:"double_releases"`
	LastTaskName   string    `json:"last_task_name,omitempty"`
	LastTaskAt     time.Time `json:"last_task_at"`
}
