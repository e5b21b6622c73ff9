package translation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lemonhall/radioscribe/internal/model"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// buildMessages renders the system contract and the user payload for one
// translation batch. The system message pins the output to a bare JSON
// array so extraction stays mechanical.
func buildMessages(
	segments []model.TranscriptSegment,
	prior []model.TranslatedSegment,
	sourceLanguage string,
	targetLanguage string,
) []chatMessage {
	sys := strings.Join([]string{
		"You are a translation engine.",
		fmt.Sprintf("Translate from %s to %s.", sourceLanguage, targetLanguage),
		"Output MUST be valid JSON (no markdown, no code fences).",
		"Output format: a JSON array of objects, one per input segment:",
		`[{ "id": <int>, "translatedText": <string> }, ...]`,
		"Rules:",
		"- Keep the same number of items as input.",
		"- Preserve ids exactly; do not reorder.",
		fmt.Sprintf("- translatedText must be in %s.", targetLanguage),
	}, "\n")

	return []chatMessage{
		{Role: "system", Content: sys},
		{Role: "user", Content: renderPayload(segments, prior)},
	}
}

func renderPayload(segments []model.TranscriptSegment, prior []model.TranslatedSegment) string {
	var b strings.Builder
	b.WriteString("Context (previous translations, may be empty):\n")
	b.WriteString(renderContext(prior))
	b.WriteString("\n\nSegments to translate (JSON array):\n")
	b.WriteString(renderSegments(segments))
	return b.String()
}

func renderContext(prior []model.TranslatedSegment) string {
	if len(prior) == 0 {
		return "[]"
	}
	lines := make([]string, 0, len(prior))
	for _, s := range prior {
		line, _ := json.Marshal(struct {
			ID             int    `json:"id"`
			SourceText     string `json:"sourceText"`
			TranslatedText string `json:"translatedText"`
		}{
			ID:             s.ID,
			SourceText:     flatten(s.SourceText),
			TranslatedText: flatten(s.TranslatedText),
		})
		lines = append(lines, string(line))
	}
	return "[\n" + strings.Join(lines, ",\n") + "\n]"
}

func renderSegments(segments []model.TranscriptSegment) string {
	if len(segments) == 0 {
		return "[]"
	}
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		line, _ := json.Marshal(struct {
			ID   int    `json:"id"`
			Text string `json:"text"`
		}{ID: s.ID, Text: flatten(s.Text)})
		lines = append(lines, string(line))
	}
	return "[\n" + strings.Join(lines, ",\n") + "\n]"
}

func flatten(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
