package asr

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/lemonhall/radioscribe/internal/errors"
)

// sentenceDoc merges the field-name variants DashScope deployments use
// for one sentence. Pointer fields distinguish absent from zero so the
// fallback chains below can pick the first populated variant.
type sentenceDoc struct {
	SentenceID *int    `mapstructure:"sentence_id"`
	BeginTime  *int64  `mapstructure:"begin_time"`
	StartTime  *int64  `mapstructure:"start_time"`
	EndTime    *int64  `mapstructure:"end_time"`
	FinishTime *int64  `mapstructure:"finish_time"`
	EndTimeMs  *int64  `mapstructure:"end_time_ms"`
	Text       *string `mapstructure:"text"`
	Transcript *string `mapstructure:"transcript"`
	Sentence   *string `mapstructure:"sentence"`
	Content    *string `mapstructure:"content"`
	Emotion    string  `mapstructure:"emotion"`
	Language   string  `mapstructure:"language"`
}

// decodeResult extracts segments from any of the known result shapes:
// channel arrays ("transcripts"/"transcriptions"/"channels" each with a
// sentence list), a flat sentence list on the result itself, a nested
// "transcript"/"transcription"/"output" object, or a bare text field
// that becomes a single segment.
func decodeResult(result map[string]any) (*Result, error) {
	channels := firstArray(result, "transcripts", "transcriptions", "channels")
	var firstChannel map[string]any
	if len(channels) > 0 {
		firstChannel, _ = channels[0].(map[string]any)
	}

	sentences := firstArray(firstChannel, "sentences", "sentence_list", "segments")
	if sentences == nil {
		sentences = firstArray(result, "sentences", "sentence_list", "segments")
	}
	if sentences == nil {
		nested := firstObject(result, "transcript", "transcription", "output")
		sentences = firstArray(nested, "sentences", "segments")
	}

	segments := make([]Segment, 0, len(sentences))
	detectedLanguage := ""
	for i, raw := range sentences {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		var doc sentenceDoc
		if err := decodeWeak(obj, &doc); err != nil {
			return nil, errors.Wrap(err, errors.CodeAsrParseError, "invalid sentence in asr result")
		}
		text := firstString(doc.Text, doc.Transcript, doc.Sentence, doc.Content)
		if text == nil {
			continue
		}
		id := i
		if doc.SentenceID != nil {
			id = *doc.SentenceID
		}
		segments = append(segments, Segment{
			ID:      id,
			StartMs: firstInt64(doc.BeginTime, doc.StartTime),
			EndMs:   firstInt64(doc.EndTime, doc.FinishTime, doc.EndTimeMs),
			Text:    *text,
			Emotion: strings.TrimSpace(doc.Emotion),
		})
		if detectedLanguage == "" {
			detectedLanguage = strings.TrimSpace(doc.Language)
		}
	}
	if detectedLanguage == "" {
		detectedLanguage = stringField(firstChannel, "language")
	}
	if detectedLanguage == "" {
		detectedLanguage = stringField(result, "language")
	}

	if len(segments) > 0 {
		return &Result{Segments: segments, DetectedLanguage: detectedLanguage}, nil
	}

	// Some variants only return a single text blob.
	for _, key := range []string{"text", "transcript_text", "transcription_text"} {
		if text := stringField(result, key); text != "" {
			return &Result{
				Segments:         []Segment{{ID: 0, Text: text}},
				DetectedLanguage: detectedLanguage,
			}, nil
		}
	}
	if text := stringField(firstChannel, "text"); text != "" {
		return &Result{
			Segments:         []Segment{{ID: 0, Text: text}},
			DetectedLanguage: detectedLanguage,
		}, nil
	}

	return &Result{Segments: segments, DetectedLanguage: detectedLanguage}, nil
}

// decodeWeak decodes with weak typing so numeric fields arrive whether
// the deployment serializes them as numbers or strings.
func decodeWeak(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func firstArray(obj map[string]any, keys ...string) []any {
	for _, key := range keys {
		if arr, ok := obj[key].([]any); ok {
			return arr
		}
	}
	return nil
}

func firstObject(obj map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if nested, ok := obj[key].(map[string]any); ok {
			return nested
		}
	}
	return nil
}

func firstString(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func firstInt64(candidates ...*int64) int64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
