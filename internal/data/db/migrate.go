package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
)

// Models lists every table owned by the application. casbin_rule is
// created by the casbin adapter.
func Models() []any {
	return []any{
		&knowledge.Document{},
		&knowledge.Chunk{},
		&knowledge.QueryLog{},
		&jobs.JobRun{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
