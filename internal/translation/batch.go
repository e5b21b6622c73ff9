package translation

import (
	"strings"
	"unicode/utf8"

	"github.com/lemonhall/radioscribe/internal/model"
)

// SplitByApproxChars splits segments into batches whose combined cost
// stays under maxChars. Each segment costs its text length plus a fixed
// overhead for the JSON wrapping; a single oversized segment still forms
// its own batch. maxChars is clamped to a sane floor.
func SplitByApproxChars(segments []model.TranscriptSegment, maxChars int) [][]model.TranscriptSegment {
	limit := maxChars
	if limit < 256 {
		limit = 256
	}
	if len(segments) == 0 {
		return nil
	}

	var out [][]model.TranscriptSegment
	var cur []model.TranscriptSegment
	curChars := 0

	for _, s := range segments {
		cost := utf8.RuneCountInString(strings.TrimSpace(s.Text)) + 64
		if len(cur) > 0 && curChars+cost > limit {
			out = append(out, cur)
			cur = nil
			curChars = 0
		}
		cur = append(cur, s)
		curChars += cost
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
