// Package provenance classifies logged knowledge queries by where their
// answer came from and reduces the log into a liability report.
package provenance

import "github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"

type Class string

const (
	Proprietary Class = "proprietary"
	External    Class = "external"
	NoMatch     Class = "no-match"
)

// Classify depends only on sources. Any external AI marker wins over
// knowledge base sources.
func Classify(sources []knowledge.Source) Class {
	for _, s := range sources {
		if s.Type == knowledge.SourceExternalAI {
			return External
		}
	}
	if len(sources) > 0 {
		return Proprietary
	}
	return NoMatch
}

func ClassifyEntry(q *knowledge.QueryLog) Class {
	if q == nil {
		return NoMatch
	}
	return Classify(q.SourcesUsed)
}

// Label is the report wording for c.
func (c Class) Label() string {
	switch c {
	case Proprietary:
		return "Closed-loop"
	case External:
		return "External AI"
	default:
		return "No match"
	}
}
