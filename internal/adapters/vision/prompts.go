package vision

import (
	"fmt"
	"strings"

	"github.com/okian/keiba/internal/domain/marks"
)

const metadataPrompt = `This image is a Japanese horse racing prediction sheet.
Read the race it belongs to and answer with JSON only:
{"date": "YYYY-MM-DD", "venue": "<racecourse name as printed>", "race_number": <integer>}
Use null for a value you cannot read.`

// MarksPrompt lists the canonical marks so the model reports every category.
func MarksPrompt() string {
	var b strings.Builder
	b.WriteString("This image is a Japanese horse racing prediction sheet with hand placed marks.\n")
	b.WriteString("For each mark below, report the horse number it is placed on:\n")
	for _, m := range marks.Canonical() {
		fmt.Fprintf(&b, "- %s (%s)\n", m.Symbol, m.Name)
	}
	b.WriteString(`Answer with JSON only:
{"marks": [{"mark": "<symbol>", "horse_number": <integer or "?" or null>, "confidence": <0..1 or null>, "candidates": [<integers>]}]}
Use "?" when a mark is present but its number is unreadable, and list the numbers it could be in candidates.
Use null when the mark does not appear.`)
	return b.String()
}
