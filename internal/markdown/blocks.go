package markdown

import (
	"regexp"
	"strings"
)

var (
	fencePattern    = regexp.MustCompile("^(```|~~~)")
	titlePattern    = regexp.MustCompile(`(?m)^#\s+(.+?)\s*#*\s*$`)
	setextH1Pattern = regexp.MustCompile(`(?m)^(\S.*)\n=+\s*$`)
	headingLine     = regexp.MustCompile(`^#{1,6}\s+`)
)

// Block is a paragraph-level slice of a markdown document.
type Block struct {
	Text    string
	Heading string // nearest preceding heading, without '#' markers
	Level   int    // heading level when the block itself is a heading
}

// SplitBlocks splits markdown into blocks separated by blank lines.
// Fenced code stays in one block; headings are their own blocks.
func SplitBlocks(md string) []Block {
	var (
		blocks  []Block
		current []string
		heading string
		inFence bool
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(current, "\n"))
		current = current[:0]
		if text != "" {
			blocks = append(blocks, Block{Text: text, Heading: heading})
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if fencePattern.MatchString(trimmed) {
			current = append(current, line)
			if inFence {
				flush()
			}
			inFence = !inFence
			continue
		}
		if inFence {
			current = append(current, line)
			continue
		}

		if headingLine.MatchString(trimmed) {
			flush()
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			heading = strings.TrimSpace(strings.Trim(trimmed, "#"))
			blocks = append(blocks, Block{Text: trimmed, Heading: heading, Level: level})
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return blocks
}

// ExtractTitle returns the first level-one heading of a markdown document.
func ExtractTitle(md string) string {
	if m := titlePattern.FindStringSubmatch(md); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := setextH1Pattern.FindStringSubmatch(md); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
