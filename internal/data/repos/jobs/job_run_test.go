package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()

	queued := testutil.SeedJobRun(t, ctx, tx, types.JobTypeKnowledgeEmbed, types.StatusQueued, now.Add(-3*time.Hour))

	failed := testutil.SeedJobRun(t, ctx, tx, types.JobTypeKnowledgeEmbed, types.StatusFailed, now.Add(-2*time.Hour))
	if err := repo.UpdateFields(dbc, failed.ID, map[string]interface{}{"last_error_at": now.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	staleRunning := testutil.SeedJobRun(t, ctx, tx, types.JobTypeKnowledgeEmbed, types.StatusRunning, now.Add(-1*time.Hour))
	if err := repo.UpdateFields(dbc, staleRunning.ID, map[string]interface{}{"heartbeat_at": now.Add(-10 * time.Hour)}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	// terminal, never claimed
	testutil.SeedJobRun(t, ctx, tx, types.JobTypeKnowledgeEmbed, types.StatusSucceeded, now.Add(-30*time.Minute))

	got, err := repo.GetByID(dbc, queued.ID)
	if err != nil || got == nil || got.ID != queued.ID {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: err=%v got=%v", err, missing)
	}

	// ClaimNextRunnable should walk the runnable set in created_at ASC order.
	want := []uuid.UUID{queued.ID, failed.ID, staleRunning.ID}
	for i, id := range want {
		claim, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if claim == nil || claim.ID != id {
			t.Fatalf("ClaimNextRunnable #%d: got=%v want=%v", i+1, claim, id)
		}
		if claim.Status != types.StatusRunning || claim.Attempts != 1 {
			t.Fatalf("ClaimNextRunnable #%d: status=%s attempts=%d", i+1, claim.Status, claim.Attempts)
		}
	}
	if claim, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour); err != nil || claim != nil {
		t.Fatalf("ClaimNextRunnable #4: err=%v got=%v want=nil", err, claim)
	}

	// UpdateFieldsUnlessStatus respects the guard.
	if err := repo.UpdateFields(dbc, queued.ID, map[string]interface{}{"status": types.StatusCanceled}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{types.StatusCanceled}, map[string]interface{}{"status": types.StatusSucceeded})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsUnlessStatus canceled: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, failed.ID, []string{types.StatusCanceled}, map[string]interface{}{
		"status": types.StatusSucceeded,
		"result": datatypes.JSON([]byte(`{"chunks_embedded":2}`)),
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus running: ok=%v err=%v", ok, err)
	}

	if err := repo.Heartbeat(dbc, staleRunning.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// HasRunnableForEntity / GetLatestByEntity
	docID := uuid.New()
	older := &types.JobRun{
		JobType:    types.JobTypeKnowledgeEmbed,
		EntityType: types.EntityKnowledgeDocument,
		EntityID:   &docID,
		Status:     types.StatusSucceeded,
		Stage:      "done",
		CreatedAt:  now.Add(-5 * time.Hour),
		UpdatedAt:  now.Add(-5 * time.Hour),
	}
	newer := &types.JobRun{
		JobType:    types.JobTypeKnowledgeEmbed,
		EntityType: types.EntityKnowledgeDocument,
		EntityID:   &docID,
		Status:     types.StatusQueued,
		Stage:      "queued",
		CreatedAt:  now.Add(-4 * time.Hour),
		UpdatedAt:  now.Add(-4 * time.Hour),
	}
	if _, err := repo.Create(dbc, []*types.JobRun{older, newer}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	latest, err := repo.GetLatestByEntity(dbc, types.EntityKnowledgeDocument, docID, types.JobTypeKnowledgeEmbed)
	if err != nil {
		t.Fatalf("GetLatestByEntity: %v", err)
	}
	if latest == nil || latest.ID != newer.ID {
		t.Fatalf("GetLatestByEntity: got=%v want=%v", latest, newer.ID)
	}
	has, err := repo.HasRunnableForEntity(dbc, types.EntityKnowledgeDocument, docID, types.JobTypeKnowledgeEmbed)
	if err != nil || !has {
		t.Fatalf("HasRunnableForEntity: has=%v err=%v", has, err)
	}
	has, err = repo.HasRunnableForEntity(dbc, types.EntityKnowledgeDocument, uuid.New(), types.JobTypeKnowledgeEmbed)
	if err != nil || has {
		t.Fatalf("HasRunnableForEntity other: has=%v err=%v", has, err)
	}
}
