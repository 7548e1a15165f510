package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/data/repos/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

type DocumentRepo = knowledge.DocumentRepo
type ChunkRepo = knowledge.ChunkRepo
type ChunkHit = knowledge.ChunkHit
type QueryLogRepo = knowledge.QueryLogRepo

type JobRunRepo = jobs.JobRunRepo

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return knowledge.NewDocumentRepo(db, baseLog)
}
func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return knowledge.NewChunkRepo(db, baseLog)
}
func NewQueryLogRepo(db *gorm.DB, baseLog *logger.Logger) QueryLogRepo {
	return knowledge.NewQueryLogRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
