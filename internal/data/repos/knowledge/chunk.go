package knowledge

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/dbctx"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

// ChunkHit is a search result joined with its document's file name.
type ChunkHit struct {
	types.Chunk
	FileName string `gorm:"column:file_name"`
}

type ChunkRepo interface {
	Create(dbc dbctx.Context, chunks []*types.Chunk) error
	DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error)
	CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Chunk, error)
	ListUnembedded(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Chunk, error)
	SetEmbedding(dbc dbctx.Context, id uuid.UUID, vector []float32, model string, at time.Time) error
	Search(dbc dbctx.Context, terms []string, limit int) ([]ChunkHit, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{
		db:  db,
		log: baseLog.With("repo", "KnowledgeChunkRepo"),
	}
}

func (r *chunkRepo) Create(dbc dbctx.Context, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return dbc.DB(r.db).Create(&chunks).Error
}

func (r *chunkRepo) DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error) {
	if documentID == uuid.Nil {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("document_id = ?", documentID).Delete(&types.Chunk{})
	return res.RowsAffected, res.Error
}

func (r *chunkRepo) CountByDocument(dbc dbctx.Context, documentID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.Chunk{}).Where("document_id = ?", documentID).Count(&n).Error
	return n, err
}

func (r *chunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Chunk, error) {
	var out []*types.Chunk
	err := dbc.DB(r.db).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&out).Error
	return out, err
}

func (r *chunkRepo) ListUnembedded(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Chunk, error) {
	var out []*types.Chunk
	err := dbc.DB(r.db).
		Where("document_id = ? AND embedded_at IS NULL", documentID).
		Order("chunk_index ASC").
		Find(&out).Error
	return out, err
}

func (r *chunkRepo) SetEmbedding(dbc dbctx.Context, id uuid.UUID, vector []float32, model string, at time.Time) error {
	return dbc.DB(r.db).
		Model(&types.Chunk{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"embedding":       datatypes.JSONSlice[float32](vector),
			"embedding_model": model,
			"embedded_at":     at.UTC(),
		}).Error
}

// Search returns chunks from indexed documents whose content contains any
// of terms, case-insensitively. Chunks matching more distinct terms come
// first, then document and chunk order.
func (r *chunkRepo) Search(dbc dbctx.Context, terms []string, limit int) ([]ChunkHit, error) {
	const cond = `LOWER(c.content) LIKE ? ESCAPE '\'`
	var (
		match  *gorm.DB
		scores []string
		args   []interface{}
	)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		arg := "%" + escapeLike(t) + "%"
		if match == nil {
			match = r.db.Where(cond, arg)
		} else {
			match = match.Or(cond, arg)
		}
		scores = append(scores, "CASE WHEN "+cond+" THEN 1 ELSE 0 END")
		args = append(args, arg)
	}
	if match == nil {
		return []ChunkHit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var out []ChunkHit
	err := dbc.DB(r.db).
		Table("knowledge_chunk AS c").
		Select("c.*, d.file_name AS file_name").
		Joins("JOIN knowledge_document AS d ON d.id = c.document_id").
		Where("d.status = ?", types.StatusIndexed).
		Where(match).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "(" + strings.Join(scores, " + ") + ") DESC, d.created_at ASC, c.chunk_index ASC",
			Vars:               args,
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
