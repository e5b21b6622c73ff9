package model

import (
	"encoding/json"

	"github.com/lemonhall/radioscribe/internal/errors"
)

// SchemaTranslationChunk tags per-chunk translation artifacts.
const SchemaTranslationChunk = "radioscribe/translation-chunk@v1"

// TranslatedSegment pairs a transcript segment with its translation. The
// same shape serves both the persisted artifact and the rolling context
// window handed to the translator for cross-chunk coherence.
type TranslatedSegment struct {
	ID             int    `json:"id"`
	StartMs        int64  `json:"startMs"`
	EndMs          int64  `json:"endMs"`
	SourceText     string `json:"sourceText"`
	TranslatedText string `json:"translatedText"`
	Emotion        string `json:"emotion,omitempty"`
}

// TranslationChunk is the per-chunk translation artifact.
type TranslationChunk struct {
	Schema         string              `json:"schema"`
	SessionID      string              `json:"sessionId"`
	ChunkIndex     int                 `json:"chunkIndex"`
	SourceLanguage string              `json:"sourceLanguage"`
	TargetLanguage string              `json:"targetLanguage"`
	Segments       []TranslatedSegment `json:"segments"`
}

// ParseTranslationChunk decodes and validates a chunk translation document.
func ParseTranslationChunk(raw []byte) (*TranslationChunk, error) {
	var chunk TranslationChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgs, "invalid translation json (expected json object)")
	}
	if chunk.Schema != SchemaTranslationChunk {
		return nil, errors.Newf(errors.CodeInvalidArgs, "unsupported translation schema: %s", chunk.Schema)
	}
	return &chunk, nil
}

// AppendContext appends segs to a rolling context window, keeping only
// the trailing max entries.
func AppendContext(window []TranslatedSegment, segs []TranslatedSegment, max int) []TranslatedSegment {
	window = append(window, segs...)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}
