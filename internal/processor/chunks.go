package processor

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mfenderov/calscrape/internal/markdown"
	"github.com/mfenderov/calscrape/pkg/models"
)

const blockSelector = "p, li, div, section, article, td, dd, h1, h2, h3, h4, h5, h6, span.event, time, address, blockquote, pre"

// maxChildCoverage is the share of a block's text a single child block may
// cover before the parent is skipped in favor of the child.
const maxChildCoverage = 0.8

// htmlChunks walks block elements under root and scores each candidate.
func (p *Processor) htmlChunks(root *goquery.Selection, inMain bool) []models.SemanticChunk {
	var chunks []models.SemanticChunk

	visit := func(_ int, s *goquery.Selection) {
		text := nodeText(s.Get(0))
		if len(text) < p.opts.MinBlockChars || len(text) > p.opts.MaxBlockChars {
			return
		}
		if coveredByChild(s, len(text)) {
			return
		}
		ctx := models.SourceContext{
			Tag:           goquery.NodeName(s),
			Classes:       strings.Fields(s.AttrOr("class", "")),
			InMainContent: inMain,
		}
		chunks = append(chunks, newChunk(text, ctx))
	}

	if root.Is(blockSelector) {
		visit(0, root)
	}
	root.Find(blockSelector).Each(visit)
	return chunks
}

func coveredByChild(s *goquery.Selection, textLen int) bool {
	covered := false
	s.Find(blockSelector).EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if float64(len(nodeText(child.Get(0)))) > maxChildCoverage*float64(textLen) {
			covered = true
			return false
		}
		return true
	})
	return covered
}

// markdownChunks scores each paragraph-level block of a markdown document.
// Blocks are prefixed with their section heading so dates keep their
// context.
func (p *Processor) markdownChunks(md string) []models.SemanticChunk {
	var chunks []models.SemanticChunk
	for _, b := range markdown.SplitBlocks(md) {
		if b.Level > 0 {
			continue
		}
		text := b.Text
		if b.Heading != "" {
			text = b.Heading + "\n" + text
		}
		if len(text) < p.opts.MinBlockChars || len(text) > p.opts.MaxBlockChars {
			continue
		}
		chunks = append(chunks, newChunk(text, models.SourceContext{
			Tag:           markdownTag(b.Text),
			InMainContent: true,
		}))
	}
	return chunks
}

func markdownTag(text string) string {
	switch {
	case strings.HasPrefix(text, "```"), strings.HasPrefix(text, "~~~"):
		return "pre"
	case strings.HasPrefix(text, "- "), strings.HasPrefix(text, "* "):
		return "li"
	case strings.HasPrefix(text, "> "):
		return "blockquote"
	case strings.HasPrefix(text, "|"):
		return "td"
	default:
		return "p"
	}
}

func newChunk(text string, ctx models.SourceContext) models.SemanticChunk {
	entities := ExtractEntities(text)
	eventScore := EventScore(text, entities)
	return models.SemanticChunk{
		Content:        text,
		TokenEstimate:  models.EstimateTokens(text),
		RelevanceScore: RelevanceScore(text, entities),
		EventScore:     eventScore,
		Type:           Classify(text, entities, eventScore, ctx),
		Entities:       entities,
		Context:        ctx,
	}
}

// rank dedupes identical texts, orders by combined score and keeps the top
// chunks that clear the quality threshold. When none clear it, the best
// available chunks are kept instead.
func (p *Processor) rank(candidates []models.SemanticChunk) []models.SemanticChunk {
	seen := make(map[string]bool, len(candidates))
	unique := make([]models.SemanticChunk, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Content] {
			continue
		}
		seen[c.Content] = true
		unique = append(unique, c)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].CombinedScore() > unique[j].CombinedScore()
	})

	var kept []models.SemanticChunk
	for _, c := range unique {
		if len(kept) == p.opts.MaxChunks {
			break
		}
		if c.CombinedScore() >= p.opts.QualityThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) > 0 {
		return kept
	}

	return unique[:min(len(unique), p.opts.FallbackChunks)]
}
