package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/jobs/pipeline/knowledge_embed"
	jobruntime "github.com/yungbote/tcm-knowledge-backend/internal/jobs/runtime"
	"github.com/yungbote/tcm-knowledge-backend/internal/jobs/worker"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

type Services struct {
	// Tokens is only wired for the HTTP server.
	Tokens   services.TokenVerifier
	Notifier services.JobNotifier
	Jobs     services.JobService

	Dispatcher services.EmbeddingDispatcher
	Scanner    services.KnowledgeScanner
	Importer   services.KnowledgeImporter
	QueryLogs  services.QueryLogService
	Search     services.KnowledgeSearch

	JobRegistry *jobruntime.Registry
	// JobWorker is nil when no handler is registered or WORKER_ENABLED is off.
	JobWorker *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	notifier := services.NewJobNotifier(log, clients.JobBus)
	jobs := services.NewJobService(log, repos.JobRuns, notifier)
	dispatcher := services.NewEmbeddingDispatcher(log, jobs, repos.JobRuns)

	scanner := services.NewKnowledgeScanner(log, clients.ObjectStore, services.ScannerConfig{
		PageSize:        cfg.ScanPageSize,
		DefaultMaxFiles: cfg.ScanMaxFiles,
	})
	importer := services.NewKnowledgeImporter(log, scanner, clients.ObjectStore, repos.Documents, repos.Chunks, dispatcher, services.ImporterConfig{
		MaxPaths:       cfg.MaxResyncPaths,
		ChunkBatchSize: cfg.ChunkBatchSize,
		MaxFileBytes:   cfg.MaxCSVBytes,
		Vocabulary:     cfg.Vocabulary,
	})
	queryLogs := services.NewQueryLogService(log, repos.QueryLogs)
	search := services.NewKnowledgeSearch(log, repos.Chunks, queryLogs)

	jobRegistry := jobruntime.NewRegistry()
	if clients.Embedder != nil {
		embed := knowledge_embed.New(log, repos.Documents, repos.Chunks, clients.Embedder)
		if err := jobRegistry.Register(embed); err != nil {
			return Services{}, err
		}
	}

	var jobWorker *worker.Worker
	switch {
	case !cfg.WorkerEnabled:
		log.Info("Job worker disabled (WORKER_ENABLED=false)")
	case len(jobRegistry.Types()) == 0:
		log.Warn("Job worker not started: no job handlers registered")
	default:
		jobWorker = worker.NewWorker(db, log, repos.JobRuns, jobRegistry, notifier, cfg.Worker)
	}

	return Services{
		Notifier:    notifier,
		Jobs:        jobs,
		Dispatcher:  dispatcher,
		Scanner:     scanner,
		Importer:    importer,
		QueryLogs:   queryLogs,
		Search:      search,
		JobRegistry: jobRegistry,
		JobWorker:   jobWorker,
	}, nil
}
