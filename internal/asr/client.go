package asr

import "context"

// Segment is one time-aligned sentence returned by the provider.
type Segment struct {
	ID      int
	StartMs int64
	EndMs   int64
	Text    string
	Emotion string
}

// Result is the transcription of one audio file.
type Result struct {
	Segments         []Segment
	DetectedLanguage string
}

// Client transcribes a single audio file. language nil means the
// provider should auto-detect the spoken language.
type Client interface {
	Transcribe(ctx context.Context, audioPath string, language *string) (*Result, error)
}
