// File path: internal/chunker/profiles.go
package chunker

import "strings"

// Profile controls how files of one language are split. Marker strings are
// matched against the trimmed start of each line; the first marker that
// matches wins and a line matches at most one marker.
type Profile struct {
	MaxChunkSize      int
	OverlapSize       int
	Markers           []string
	PreserveStructure bool
}

// OverlapLines converts the character-based overlap setting into a line
// count. The divisor and cap are heuristics carried over from the original
// tuning; treat them as configuration, not arithmetic truth.
func (p Profile) OverlapLines() int {
	lines := p.OverlapSize / 50
	if lines > 5 {
		lines = 5
	}
	if lines < 0 {
		lines = 0
	}
	return lines
}

// defaultProfile handles unknown languages with a plain sliding window.
var defaultProfile = Profile{
	MaxChunkSize: 1000,
	OverlapSize:  100,
}

var profiles = map[string]Profile{
	"go": {
		MaxChunkSize:      1500,
		OverlapSize:       150,
		Markers:           []string{"func ", "type ", "import ", "const ", "var ", "package "},
		PreserveStructure: true,
	},
	"python": {
		MaxChunkSize:      1500,
		OverlapSize:       150,
		Markers:           []string{"def ", "async def ", "class ", "import ", "from ", "@"},
		PreserveStructure: true,
	},
	"javascript": {
		MaxChunkSize:      1500,
		OverlapSize:       150,
		Markers:           []string{"function ", "class ", "export ", "import ", "const ", "let "},
		PreserveStructure: true,
	},
	"typescript": {
		MaxChunkSize:      1500,
		OverlapSize:       150,
		Markers:           []string{"function ", "class ", "interface ", "export ", "import ", "const "},
		PreserveStructure: true,
	},
	"java": {
		MaxChunkSize:      1500,
		OverlapSize:       150,
		Markers:           []string{"public ", "private ", "protected ", "class ", "interface ", "import "},
		PreserveStructure: true,
	},
	"ruby": {
		MaxChunkSize:      1200,
		OverlapSize:       120,
		Markers:           []string{"def ", "class ", "module ", "require "},
		PreserveStructure: true,
	},
	"rust": {
		MaxChunkSize:      1500,
		OverlapSize:       150,
		Markers:           []string{"fn ", "pub fn ", "struct ", "impl ", "trait ", "use ", "mod "},
		PreserveStructure: true,
	},
	"markdown": {
		MaxChunkSize:      2000,
		OverlapSize:       100,
		Markers:           []string{"# ", "## ", "### ", "#### "},
		PreserveStructure: true,
	},
	"yaml": {
		MaxChunkSize:      1200,
		OverlapSize:       100,
		Markers:           []string{"apiVersion:", "kind:", "metadata:", "spec:", "services:", "jobs:", "stages:", "steps:"},
		PreserveStructure: true,
	},
	"json": {
		MaxChunkSize: 1200,
		OverlapSize:  100,
	},
	"shell": {
		MaxChunkSize:      1200,
		OverlapSize:       100,
		Markers:           []string{"function ", "#!"},
		PreserveStructure: true,
	},
}

// profileFor selects the chunking profile for a language tag, falling back
// to the generic default for unknown languages.
func profileFor(language string) Profile {
	key := strings.ToLower(strings.TrimSpace(language))
	if profile, ok := profiles[key]; ok {
		return profile
	}
	return defaultProfile
}
