package markdown

import "testing"

func TestSplitBlocks(t *testing.T) {
	md := "# Events\n\nSpring Gala on March 3.\nGrand Hotel.\n\n## Workshops\n\n- Intro to Go\n- Testing\n\n```\ncode\n\nstill code\n```\n"

	blocks := SplitBlocks(md)

	want := []struct {
		text    string
		heading string
		level   int
	}{
		{"# Events", "Events", 1},
		{"Spring Gala on March 3.\nGrand Hotel.", "Events", 0},
		{"## Workshops", "Workshops", 2},
		{"- Intro to Go\n- Testing", "Workshops", 0},
		{"```\ncode\n\nstill code\n```", "Workshops", 0},
	}
	if len(blocks) != len(want) {
		t.Fatalf("SplitBlocks() returned %d blocks, want %d: %+v", len(blocks), len(want), blocks)
	}
	for i, w := range want {
		if blocks[i].Text != w.text {
			t.Errorf("block[%d].Text = %q, want %q", i, blocks[i].Text, w.text)
		}
		if blocks[i].Heading != w.heading {
			t.Errorf("block[%d].Heading = %q, want %q", i, blocks[i].Heading, w.heading)
		}
		if blocks[i].Level != w.level {
			t.Errorf("block[%d].Level = %d, want %d", i, blocks[i].Level, w.level)
		}
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{"atx heading", "intro\n# Community Calendar\n\ntext", "Community Calendar"},
		{"closing hashes", "# Calendar #\n", "Calendar"},
		{"setext heading", "Calendar\n========\n\ntext", "Calendar"},
		{"h2 only", "## Not a title\n", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTitle(tt.md); got != tt.want {
				t.Errorf("ExtractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
