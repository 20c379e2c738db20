package model

import "time"

type KnowledgeCategory string

const (
	CategoryCritical      KnowledgeCategory = "critical"
	CategoryHigh          KnowledgeCategory = "high"
	CategoryResourceRules KnowledgeCategory = "resource-rules"
)

// KnowledgeSnippet is one protocol text section. Snippets are immutable;
// a new protocol version replaces the whole active set at once.
type KnowledgeSnippet struct {
	Category  KnowledgeCategory
	Text      string
	VersionAt time.Time
}

// KnowledgeUpdate is a whole-document protocol replacement produced by the
// normalizer. All snippets share one version timestamp.
type KnowledgeUpdate struct {
	Snippets  []*KnowledgeSnippet
	VersionAt time.Time
}
