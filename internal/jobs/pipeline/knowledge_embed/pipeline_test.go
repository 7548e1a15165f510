package knowledge_embed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	jobrt "github.com/yungbote/tcm-knowledge-backend/internal/jobs/runtime"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
)

type staticEmbedder struct{}

func (staticEmbedder) Model() string { return "embed-test" }

func (staticEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.5, 0.25}
	}
	return out, nil
}

func TestPipelineRun(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	runs := repos.NewJobRunRepo(db, log)
	p := New(log, repos.NewDocumentRepo(db, log), repos.NewChunkRepo(db, log), staticEmbedder{})
	if p.Type() != types.JobTypeKnowledgeEmbed {
		t.Fatalf("Type: got=%s want=%s", p.Type(), types.JobTypeKnowledgeEmbed)
	}

	doc := testutil.SeedDocument(t, ctx, db, "herbs.csv", knowledge.StatusIndexed)
	testutil.SeedChunks(t, ctx, db, doc.ID, "Q: Ren Shen\nA: tonic", "Q: Gan Cao\nA: harmonizes")

	job := testutil.SeedJobRun(t, ctx, db, types.JobTypeKnowledgeEmbed, types.StatusRunning, time.Now().UTC())
	job.Payload = datatypes.JSON([]byte(`{"document_id":"` + doc.ID.String() + `"}`))

	if err := p.Run(jobrt.NewContext(ctx, db, job, runs, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := runs.GetByID(dbctx.Background(), job.ID)
	if got.Status != types.StatusSucceeded {
		t.Fatalf("status: got=%s want=%s (error=%s)", got.Status, types.StatusSucceeded, got.Error)
	}
	var res map[string]any
	if err := json.Unmarshal(got.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res["chunks_embedded"] != float64(2) || res["document_id"] != doc.ID.String() {
		t.Fatalf("result: got=%v", res)
	}
}

func TestPipelineMissingDocument(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	runs := repos.NewJobRunRepo(db, log)
	p := New(log, repos.NewDocumentRepo(db, log), repos.NewChunkRepo(db, log), staticEmbedder{})

	job := testutil.SeedJobRun(t, ctx, db, types.JobTypeKnowledgeEmbed, types.StatusRunning, time.Now().UTC())
	if err := p.Run(jobrt.NewContext(ctx, db, job, runs, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := runs.GetByID(dbctx.Background(), job.ID)
	if got.Status != types.StatusFailed || got.Stage != "validate" {
		t.Fatalf("missing payload: got=%s/%s want=failed/validate", got.Status, got.Stage)
	}
}
