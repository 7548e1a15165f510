package services

import (
	"context"
	"time"

	"github.com/yungbote/tcm-knowledge-backend/internal/clients/redis"
	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
}

type jobNotifier struct {
	log *logger.Logger
	bus redis.JobBus
}

// NewJobNotifier publishes lifecycle events on bus. A nil bus only logs.
func NewJobNotifier(baseLog *logger.Logger, bus redis.JobBus) JobNotifier {
	return &jobNotifier{log: baseLog.With("service", "JobNotifier"), bus: bus}
}

func (n *jobNotifier) publish(ev types.Event) {
	n.log.Debug("job event", "event", ev.Event, "job_id", ev.JobID, "job_type", ev.JobType, "stage", ev.Stage, "progress", ev.Progress)
	if n.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("publish job event failed", "event", ev.Event, "job_id", ev.JobID, "error", err)
	}
}

func (n *jobNotifier) JobCreated(job *types.JobRun) {
	n.publish(types.NewEvent(types.EventJobCreated, job))
}

func (n *jobNotifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	ev := types.NewEvent(types.EventJobProgress, job)
	ev.Stage = stage
	ev.Progress = progress
	ev.Message = message
	n.publish(ev)
}

func (n *jobNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	ev := types.NewEvent(types.EventJobFailed, job)
	ev.Stage = stage
	ev.Error = errorMessage
	n.publish(ev)
}

func (n *jobNotifier) JobDone(job *types.JobRun) {
	n.publish(types.NewEvent(types.EventJobDone, job))
}
