// Package csvdoc turns knowledge CSV files into rows and index chunks.
//
// Records are split on newlines before fields, so a quoted field cannot span
// lines. Rows whose field count differs from the header are dropped.
package csvdoc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrNoHeader = errors.New("csv has no header row")
	ErrNoRows   = errors.New("csv has no data rows")
)

const bom = "\ufeff"

// Row is one data record. Line is the 1-based line number in the source.
type Row struct {
	Line   int
	Fields []string
}

type Table struct {
	Headers []string
	Rows    []Row
	// Dropped counts records skipped for a field count mismatch.
	Dropped int
}

// DecodeText returns raw as UTF-8 text with any byte order mark removed.
// Invalid sequences become U+FFFD.
func DecodeText(raw []byte) string {
	s := strings.ToValidUTF8(string(raw), "\uFFFD")
	return strings.TrimPrefix(s, bom)
}

// HashText is the hex SHA-256 of the decoded text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func Parse(text string) (Table, error) {
	var t Table
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := SplitLine(line)
		if t.Headers == nil {
			t.Headers = fields
			continue
		}
		if len(fields) != len(t.Headers) {
			t.Dropped++
			continue
		}
		t.Rows = append(t.Rows, Row{Line: i + 1, Fields: fields})
	}
	if len(t.Headers) == 0 {
		return Table{}, ErrNoHeader
	}
	return t, nil
}

// SplitLine splits one record into trimmed fields. Double quotes group text
// containing commas and "" inside quotes is a literal quote.
func SplitLine(line string) []string {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuote && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuote = !inQuote
		case c == ',' && !inQuote:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, strings.TrimSpace(cur.String()))
}
