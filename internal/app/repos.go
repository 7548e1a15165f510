package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

type Repos struct {
	Documents repos.DocumentRepo
	Chunks    repos.ChunkRepo
	QueryLogs repos.QueryLogRepo
	JobRuns   repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Documents: repos.NewDocumentRepo(db, log),
		Chunks:    repos.NewChunkRepo(db, log),
		QueryLogs: repos.NewQueryLogRepo(db, log),
		JobRuns:   repos.NewJobRunRepo(db, log),
	}
}
