package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ContentType string

const (
	ContentQA  ContentType = "qa"
	ContentRow ContentType = "row"
)

type Chunk struct {
	ID             uuid.UUID                         `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID     uuid.UUID                         `gorm:"type:uuid;not null;uniqueIndex:idx_knowledge_chunk_doc_index,priority:1" json:"documentId"`
	ChunkIndex     int                               `gorm:"column:chunk_index;not null;uniqueIndex:idx_knowledge_chunk_doc_index,priority:2" json:"chunkIndex"`
	Content        string                            `gorm:"column:content;type:text;not null" json:"content"`
	Question       string                            `gorm:"column:question;type:text" json:"question,omitempty"`
	Answer         string                            `gorm:"column:answer;type:text" json:"answer,omitempty"`
	ContentType    ContentType                       `gorm:"column:content_type;not null" json:"contentType"`
	Pillar         string                            `gorm:"column:pillar;index" json:"pillar,omitempty"`
	Metadata       datatypes.JSONType[ChunkMetadata] `gorm:"column:metadata" json:"metadata"`
	Embedding      datatypes.JSONSlice[float32]      `gorm:"column:embedding" json:"-"`
	EmbeddingModel string                            `gorm:"column:embedding_model" json:"embeddingModel,omitempty"`
	EmbeddedAt     *time.Time                        `gorm:"column:embedded_at;index" json:"embeddedAt,omitempty"`
	CreatedAt      time.Time                         `gorm:"not null" json:"createdAt"`
}

func (Chunk) TableName() string { return "knowledge_chunk" }

func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ChunkMetadata records where a chunk came from.
type ChunkMetadata struct {
	Bucket string `json:"bucket,omitempty"`
	Path   string `json:"path,omitempty"`
	Row    int    `json:"row"`
	Pillar string `json:"pillar,omitempty"`
}
