package processor

import (
	"math"
	"strings"

	"github.com/mfenderov/calscrape/pkg/models"
)

const (
	sweetSpotMin = 50
	sweetSpotMax = 800
)

var navigationHints = []string{"nav", "menu", "breadcrumb", "pagination", "toc", "footer-links"}

// RelevanceScore rates how much extractable information a block carries.
func RelevanceScore(text string, e models.Entities) float64 {
	score := 0.0
	switch n := len(text); {
	case n >= sweetSpotMin && n <= sweetSpotMax:
		score += 0.2
	case n > sweetSpotMax:
		score += 0.1
	}
	score += math.Min(0.1*float64(len(e.Dates)), 0.3)
	score += math.Min(0.1*float64(len(e.Locations)), 0.2)
	score += math.Min(0.05*float64(len(e.Keywords)), 0.2)
	score += math.Min(0.05*float64(len(e.Organizations)), 0.1)
	return math.Min(score, 1.0)
}

// EventScore rates how likely a block describes a calendar event.
func EventScore(text string, e models.Entities) float64 {
	hasDate := len(e.Dates) > 0
	score := 0.0
	switch {
	case hasDate && len(e.Locations) > 0:
		score = 0.4
	case hasDate && len(e.Keywords) > 0:
		score = 0.3
	case hasDate:
		score = 0.15
	}
	score += math.Min(0.1*float64(len(e.Keywords)), 0.3)
	if HasRSVP(text) {
		score += 0.2
	}
	return math.Min(score, 1.0)
}

// Classify assigns a chunk type from its scores, entities and origin.
func Classify(text string, e models.Entities, eventScore float64, ctx models.SourceContext) models.ChunkType {
	if isNavigation(ctx) {
		return models.ChunkTypeNavigation
	}
	switch {
	case eventScore >= 0.5:
		return models.ChunkTypeEvent
	case len(text) < 120 && metadataPattern.MatchString(text):
		return models.ChunkTypeMetadata
	case len(e.Dates) > 0 && len(e.Locations) == 0:
		return models.ChunkTypeTemporal
	case len(e.Locations) > 0 && len(e.Dates) == 0:
		return models.ChunkTypeLocation
	default:
		return models.ChunkTypeArticle
	}
}

func isNavigation(ctx models.SourceContext) bool {
	for _, class := range ctx.Classes {
		lower := strings.ToLower(class)
		for _, hint := range navigationHints {
			if strings.Contains(lower, hint) {
				return true
			}
		}
	}
	return false
}
