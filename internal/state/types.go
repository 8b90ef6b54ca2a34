package state

import "time"

// RunRecord holds a recorded composition run.
type RunRecord struct {
	RunID        string
	Composition  string
	Status       string
	Input        string
	Steps        int
	Result       string
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// DeploymentRecord holds a recorded deployment.
type DeploymentRecord struct {
	Name       string
	States     int
	Artifacts  int
	DeployedAt time.Time
}

// LogRecord holds one run event log entry.
type LogRecord struct {
	ID        int64
	RunID     string
	Timestamp time.Time
	State     string
	Message   string
}
