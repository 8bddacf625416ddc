package models

// ChunkType classifies what a content block most likely contains.
type ChunkType string

const (
	ChunkTypeEvent      ChunkType = "event"
	ChunkTypeArticle    ChunkType = "article"
	ChunkTypeNavigation ChunkType = "navigation"
	ChunkTypeTemporal   ChunkType = "temporal"
	ChunkTypeLocation   ChunkType = "location"
	ChunkTypeMetadata   ChunkType = "metadata"
)

// Entities are the pattern matches found in a chunk.
type Entities struct {
	Dates         []string `json:"dates,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

// SourceContext records where in the page a chunk came from.
type SourceContext struct {
	Tag           string   `json:"tag"`
	Classes       []string `json:"classes,omitempty"`
	InMainContent bool     `json:"in_main_content"`
}

// SemanticChunk is a scored slice of page content submitted for extraction.
type SemanticChunk struct {
	Content        string        `json:"content"`
	TokenEstimate  int           `json:"token_estimate"`
	RelevanceScore float64       `json:"relevance_score"`
	EventScore     float64       `json:"event_score"`
	Type           ChunkType     `json:"type"`
	Entities       Entities      `json:"entities"`
	Context        SourceContext `json:"context"`
}

// CombinedScore is the ranking score used to order chunks.
func (c SemanticChunk) CombinedScore() float64 {
	return 0.6*c.EventScore + 0.4*c.RelevanceScore
}

// EstimateTokens gives a rough token count for text (4 chars per token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
