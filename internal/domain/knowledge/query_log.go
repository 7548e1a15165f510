package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SourceKnowledgeBase = "knowledge_base"
	SourceExternalAI    = "external_ai"
)

// Source is one entry of QueryLog.SourcesUsed. The external AI sentinel is
// a Source with Type SourceExternalAI and nothing else set.
type Source struct {
	Type       string `json:"type,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	Pillar     string `json:"pillar,omitempty"`
	ChunkIndex *int   `json:"chunkIndex,omitempty"`
}

func ExternalAISource() Source { return Source{Type: SourceExternalAI} }

// QueryLog is append-only.
type QueryLog struct {
	ID          uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      *uuid.UUID                  `gorm:"type:uuid;index" json:"userId,omitempty"`
	QueryText   string                      `gorm:"column:query_text;type:text;not null" json:"queryText"`
	ChunksFound int                         `gorm:"column:chunks_found;not null;default:0" json:"chunksFound"`
	AIModel     string                      `gorm:"column:ai_model" json:"aiModel"`
	SourcesUsed datatypes.JSONSlice[Source] `gorm:"column:sources_used" json:"sourcesUsed"`
	CreatedAt   time.Time                   `gorm:"not null;index" json:"createdAt"`
}

func (QueryLog) TableName() string { return "knowledge_query_log" }

func (q *QueryLog) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.SourcesUsed == nil {
		q.SourcesUsed = datatypes.JSONSlice[Source]{}
	}
	return nil
}
