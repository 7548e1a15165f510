package knowledge

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	StatusIndexing DocumentStatus = "indexing"
	StatusIndexed  DocumentStatus = "indexed"
	StatusError    DocumentStatus = "error"
)

// Document is one imported source file. FileName is the object's base name;
// FileHash is the SHA-256 of its decoded text and the content dedup key.
type Document struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FileHash     string         `gorm:"column:file_hash;not null;uniqueIndex:idx_knowledge_document_file_hash" json:"fileHash"`
	FileName     string         `gorm:"column:file_name;not null;uniqueIndex:idx_knowledge_document_file_name" json:"fileName"`
	OriginalName string         `gorm:"column:original_name;index" json:"originalName"`
	Bucket       string         `gorm:"column:bucket" json:"bucket,omitempty"`
	SourcePath   string         `gorm:"column:source_path" json:"sourcePath,omitempty"`
	RowCount     int            `gorm:"column:row_count;not null;default:0" json:"rowCount"`
	Status       DocumentStatus `gorm:"column:status;not null;index" json:"status"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	IndexedAt    *time.Time     `gorm:"column:indexed_at" json:"indexedAt,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updatedAt"`
}

func (Document) TableName() string { return "knowledge_document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Claimed reports whether the document blocks another import of the same
// file. Documents left in error status can be re-imported.
func (d *Document) Claimed() bool {
	return d != nil && (d.Status == StatusIndexing || d.Status == StatusIndexed)
}

// StorageObject is one file discovered in a bucket listing. It is never
// persisted.
type StorageObject struct {
	Path      string     `json:"path"`
	Name      string     `json:"name"`
	Size      int64      `json:"size,omitempty"`
	MimeType  string     `json:"mimeType,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// BaseName is the last segment of a slash-delimited object path.
func BaseName(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
