package csvdoc

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
)

// Vocabulary lists header names, in priority order, that mark the question
// and answer columns of a Q/A sheet.
type Vocabulary struct {
	Question []string `yaml:"question"`
	Answer   []string `yaml:"answer"`
	Pillar   []string `yaml:"pillar"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Question: []string{"question", "q", "syndrome", "syndrome_name", "name", "title"},
		Answer:   []string{"answer", "a", "description", "content", "details"},
		Pillar:   []string{"pillar", "category"},
	}
}

// withDefaults fills empty lists from DefaultVocabulary.
func (v Vocabulary) withDefaults() Vocabulary {
	d := DefaultVocabulary()
	if len(v.Question) == 0 {
		v.Question = d.Question
	}
	if len(v.Answer) == 0 {
		v.Answer = d.Answer
	}
	if len(v.Pillar) == 0 {
		v.Pillar = d.Pillar
	}
	return v
}

// Columns is the column layout detected from a header row. Indexes are -1
// when absent.
type Columns struct {
	Question int
	Answer   int
	Pillar   int
}

func (c Columns) QA() bool { return c.Question >= 0 && c.Answer >= 0 }

func DetectColumns(headers []string, vocab Vocabulary) Columns {
	vocab = vocab.withDefaults()
	cols := Columns{
		Question: findColumn(headers, vocab.Question, -1),
		Pillar:   findColumn(headers, vocab.Pillar, -1),
	}
	cols.Answer = findColumn(headers, vocab.Answer, cols.Question)
	if cols.Answer < 0 {
		cols.Question = -1
	}
	return cols
}

func findColumn(headers, names []string, skip int) int {
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		for i, h := range headers {
			if i != skip && strings.ToLower(strings.TrimSpace(h)) == name {
				return i
			}
		}
	}
	return -1
}

type BuildOptions struct {
	DocumentID uuid.UUID
	Bucket     string
	Path       string
	Vocabulary Vocabulary
}

// BuildChunks converts every row to a chunk whose ChunkIndex is the row's
// position in t.Rows.
func BuildChunks(t Table, opts BuildOptions) []*knowledge.Chunk {
	cols := DetectColumns(t.Headers, opts.Vocabulary)
	out := make([]*knowledge.Chunk, 0, len(t.Rows))
	for i, row := range t.Rows {
		c := &knowledge.Chunk{
			DocumentID: opts.DocumentID,
			ChunkIndex: i,
		}
		if cols.Pillar >= 0 {
			c.Pillar = row.Fields[cols.Pillar]
		}
		if cols.QA() {
			c.Question = row.Fields[cols.Question]
			c.Answer = row.Fields[cols.Answer]
			c.Content = "Q: " + c.Question + "\nA: " + c.Answer
			c.ContentType = knowledge.ContentQA
		} else {
			c.Content = joinNonEmpty(row.Fields)
			c.ContentType = knowledge.ContentRow
		}
		c.Metadata = datatypes.NewJSONType(knowledge.ChunkMetadata{
			Bucket: opts.Bucket,
			Path:   opts.Path,
			Row:    row.Line,
			Pillar: c.Pillar,
		})
		out = append(out, c)
	}
	return out
}

func joinNonEmpty(fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " | ")
}
