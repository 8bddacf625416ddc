package models

import "time"

// ExtractionContext carries the ambient hints passed into every LLM call.
// It is built once per run and not modified afterwards.
type ExtractionContext struct {
	SourceURL         string    `json:"source_url,omitempty"`
	Timezone          string    `json:"timezone,omitempty"`
	CurrentDate       time.Time `json:"current_date"`
	Language          string    `json:"language,omitempty"`
	AdditionalContext string    `json:"additional_context,omitempty"`
}
