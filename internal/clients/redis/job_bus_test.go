package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

func TestJobBusPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	bus := NewJobBusWithClient(logger.NewNop(), rdb, "")
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan jobs.Event, 1)
	if err := bus.Subscribe(ctx, func(ev jobs.Event) { got <- ev }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	docID := uuid.New()
	job := &jobs.JobRun{ID: uuid.New(), JobType: jobs.JobTypeKnowledgeEmbed, EntityID: &docID, Status: jobs.StatusRunning, Stage: "embed", Progress: 40}
	if err := bus.Publish(ctx, jobs.NewEvent(jobs.EventJobProgress, job)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Event != jobs.EventJobProgress || ev.JobID != job.ID || ev.Progress != 40 || ev.EntityID == nil || *ev.EntityID != docID {
			t.Fatalf("event got=%+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestNewJobBusRequiresAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if _, err := NewJobBus(logger.NewNop()); err == nil {
		t.Fatalf("expected error without REDIS_ADDR")
	}
}
