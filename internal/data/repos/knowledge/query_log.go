package knowledge

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

// QueryLogRepo is append-only: there is no update or delete.
type QueryLogRepo interface {
	Create(dbc dbctx.Context, entry *types.QueryLog) error
	// ListRecent returns the newest entries first; ties break on id so
	// the order is stable for a given snapshot.
	ListRecent(dbc dbctx.Context, limit int) ([]*types.QueryLog, error)
}

type queryLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQueryLogRepo(db *gorm.DB, baseLog *logger.Logger) QueryLogRepo {
	return &queryLogRepo{
		db:  db,
		log: baseLog.With("repo", "KnowledgeQueryLogRepo"),
	}
}

func (r *queryLogRepo) Create(dbc dbctx.Context, entry *types.QueryLog) error {
	return dbc.DB(r.db).Create(entry).Error
}

func (r *queryLogRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.QueryLog, error) {
	var out []*types.QueryLog
	q := dbc.DB(r.db).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
