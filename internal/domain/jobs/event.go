package jobs

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventJobCreated  = "job_created"
	EventJobProgress = "job_progress"
	EventJobFailed   = "job_failed"
	EventJobDone     = "job_done"
)

// Event is a job lifecycle notification published on the job bus.
type Event struct {
	Event    string     `json:"event"`
	JobID    uuid.UUID  `json:"job_id"`
	JobType  string     `json:"job_type"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
	Status   string     `json:"status"`
	Stage    string     `json:"stage,omitempty"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
	Error    string     `json:"error,omitempty"`
	At       time.Time  `json:"at"`
}

func NewEvent(name string, job *JobRun) Event {
	ev := Event{Event: name, At: time.Now().UTC()}
	if job != nil {
		ev.JobID = job.ID
		ev.JobType = job.JobType
		ev.EntityID = job.EntityID
		ev.Status = job.Status
		ev.Stage = job.Stage
		ev.Progress = job.Progress
		ev.Error = job.Error
	}
	return ev
}
