package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	// FindByName matches file_name or original_name, oldest first.
	FindByName(dbc dbctx.Context, name string) (*types.Document, error)
	FindByHash(dbc dbctx.Context, hash string) (*types.Document, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	MarkIndexed(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	MarkError(dbc dbctx.Context, id uuid.UUID, reason string) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	List(dbc dbctx.Context, limit int) ([]*types.Document, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{
		db:  db,
		log: baseLog.With("repo", "KnowledgeDocumentRepo"),
	}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) error {
	return dbc.DB(r.db).Create(doc).Error
}

func (r *documentRepo) first(q *gorm.DB) (*types.Document, error) {
	var doc types.Document
	if err := q.Order("created_at ASC").Limit(1).Find(&doc).Error; err != nil {
		return nil, err
	}
	if doc.ID == uuid.Nil {
		return nil, nil
	}
	return &doc, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("id = ?", id))
}

func (r *documentRepo) FindByName(dbc dbctx.Context, name string) (*types.Document, error) {
	if name == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("file_name = ? OR original_name = ?", name, name))
}

func (r *documentRepo) FindByHash(dbc dbctx.Context, hash string) (*types.Document, error) {
	if hash == "" {
		return nil, nil
	}
	return r.first(dbc.DB(r.db).Where("file_hash = ?", hash))
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *documentRepo) MarkIndexed(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"status":     types.StatusIndexed,
		"indexed_at": at.UTC(),
		"error":      "",
	})
}

func (r *documentRepo) MarkError(dbc dbctx.Context, id uuid.UUID, reason string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"status": types.StatusError,
		"error":  reason,
	})
}

func (r *documentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).Where("id = ?", id).Delete(&types.Document{}).Error
}

func (r *documentRepo) List(dbc dbctx.Context, limit int) ([]*types.Document, error) {
	var out []*types.Document
	q := dbc.DB(r.db).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
