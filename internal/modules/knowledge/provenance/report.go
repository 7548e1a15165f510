package provenance

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
)

const (
	MaxEntries    = 500
	idLen         = 8
	queryMaxRunes = 80
)

type Summary struct {
	Total            int `json:"total"`
	ProprietaryCount int `json:"proprietaryCount"`
	ExternalCount    int `json:"externalCount"`
	NoMatchCount     int `json:"noMatchCount"`
}

type Row struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Query       string   `json:"query"`
	ChunksFound int      `json:"chunksFound"`
	Class       Class    `json:"classification"`
	Label       string   `json:"label"`
	Files       []string `json:"files"`
}

type Report struct {
	Summary
	Rows []Row `json:"rows"`
}

// BuildReport orders entries most recent first (id breaks ties) and keeps
// at most limit of them, capped at MaxEntries. The input is not modified.
func BuildReport(entries []*knowledge.QueryLog, limit int) Report {
	if limit <= 0 || limit > MaxEntries {
		limit = MaxEntries
	}
	sorted := make([]*knowledge.QueryLog, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	rep := Report{Rows: make([]Row, 0, len(sorted))}
	for _, e := range sorted {
		class := ClassifyEntry(e)
		switch class {
		case Proprietary:
			rep.ProprietaryCount++
		case External:
			rep.ExternalCount++
		default:
			rep.NoMatchCount++
		}
		row := Row{
			ID:          shortID(e.ID.String()),
			Timestamp:   e.CreatedAt.UTC().Format(time.RFC3339),
			Query:       truncateRunes(e.QueryText, queryMaxRunes),
			ChunksFound: e.ChunksFound,
			Class:       class,
			Label:       class.Label(),
			Files:       []string{},
		}
		if class == Proprietary {
			row.Files = distinctFiles(e.SourcesUsed)
		}
		rep.Rows = append(rep.Rows, row)
	}
	rep.Total = len(rep.Rows)
	return rep
}

func shortID(id string) string {
	if len(id) > idLen {
		return id[:idLen]
	}
	return id
}

func truncateRunes(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func distinctFiles(sources []knowledge.Source) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, s := range sources {
		if s.FileName == "" {
			continue
		}
		if _, ok := seen[s.FileName]; ok {
			continue
		}
		seen[s.FileName] = struct{}{}
		out = append(out, s.FileName)
	}
	return out
}

func RenderJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func RenderText(w io.Writer, r Report) error {
	var b strings.Builder
	b.WriteString("TCM Knowledge Base Liability Report\n")
	b.WriteString("===================================\n")
	fmt.Fprintf(&b, "Total queries:          %d\n", r.Total)
	fmt.Fprintf(&b, "Closed-loop (KB only):  %d\n", r.ProprietaryCount)
	fmt.Fprintf(&b, "External AI:            %d\n", r.ExternalCount)
	fmt.Fprintf(&b, "No match:               %d\n", r.NoMatchCount)
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-8s  %-20s  %6s  %-11s  %s\n", "ID", "TIMESTAMP", "CHUNKS", "SOURCE", "QUERY")
	for _, row := range r.Rows {
		fmt.Fprintf(&b, "%-8s  %-20s  %6d  %-11s  %s\n", row.ID, row.Timestamp, row.ChunksFound, row.Label, row.Query)
		if len(row.Files) > 0 {
			fmt.Fprintf(&b, "%-8s  files: %s\n", "", strings.Join(row.Files, ", "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
