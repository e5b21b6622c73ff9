package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lemonhall/radioscribe/internal/errors"
)

// Schema tags for recording session metadata. Both are accepted on read;
// SchemaRecordingMeta is written for new sessions.
const (
	SchemaRecordingMeta      = "radioscribe/recording-meta@v1"
	SchemaRadioRecordingMeta = "radioscribe/radio-recording-meta@v1"
)

// Recording session lifecycle states written by the recorder.
const (
	SessionStatePending   = "pending"
	SessionStateRecording = "recording"
	SessionStateStopped   = "stopped"
	SessionStateFailed    = "failed"
)

// Pipeline sub-states for the legacy embedded pipeline.
const (
	PipelineStatePending   = "pending"
	PipelineStateRunning   = "running"
	PipelineStateCompleted = "completed"
	PipelineStateFailed    = "failed"
)

// Chunk is one fixed-size audio segment of a recorded session. Index is
// 1-based and is the unit of transcription/translation work.
type Chunk struct {
	File        string `json:"file"`
	Index       int    `json:"index"`
	StartAt     string `json:"startAt,omitempty"`
	EndAt       string `json:"endAt,omitempty"`
	DurationSec int    `json:"durationSec,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
}

// ErrorInfo is the persisted form of a classified failure: stable code
// plus optional human-readable message.
type ErrorInfo struct {
	Code    string  `json:"code"`
	Message *string `json:"message"`
}

// PipelineState is the embedded single-task pipeline state of a session
// (legacy mode). Counters are caches; chunk-output files on disk are the
// ground truth.
type PipelineState struct {
	TargetLanguage    *string    `json:"targetLanguage"`
	TranscriptState   string     `json:"transcriptState"`
	TranslationState  string     `json:"translationState"`
	TranscribedChunks int        `json:"transcribedChunks"`
	TranslatedChunks  int        `json:"translatedChunks"`
	FailedChunks      int        `json:"failedChunks"`
	LastError         *ErrorInfo `json:"lastError"`
}

// RecordingMeta is the session descriptor written by the recorder. The
// transcription core only reads the chunk list and mutates Pipeline.
type RecordingMeta struct {
	Schema           string         `json:"schema"`
	SessionID        string         `json:"sessionId"`
	Source           string         `json:"source,omitempty"`
	Title            string         `json:"title,omitempty"`
	ChunkDurationMin int            `json:"chunkDurationMin,omitempty"`
	OutputFormat     string         `json:"outputFormat,omitempty"`
	State            string         `json:"state"`
	CreatedAt        string         `json:"createdAt"`
	UpdatedAt        string         `json:"updatedAt"`
	DurationMs       int64          `json:"durationMs,omitempty"`
	Chunks           []Chunk        `json:"chunks"`
	Error            *ErrorInfo     `json:"error,omitempty"`
	Pipeline         *PipelineState `json:"pipeline,omitempty"`
}

// NowISO returns the timestamp format used across all artifacts.
func NowISO() string {
	return time.Now().Format(time.RFC3339)
}

// ParseRecordingMeta decodes and validates a session _meta.json document.
func ParseRecordingMeta(raw []byte) (*RecordingMeta, error) {
	var meta RecordingMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgs, "invalid _meta.json (expected json object)")
	}
	if meta.Schema != "" && meta.Schema != SchemaRecordingMeta && meta.Schema != SchemaRadioRecordingMeta {
		return nil, errors.Newf(errors.CodeInvalidArgs, "unsupported meta schema: %s", meta.Schema)
	}
	if meta.Schema == "" {
		meta.Schema = SchemaRecordingMeta
	}
	meta.SessionID = strings.TrimSpace(meta.SessionID)
	if meta.SessionID == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing sessionId in _meta.json")
	}
	if meta.UpdatedAt == "" {
		meta.UpdatedAt = meta.CreatedAt
	}
	return &meta, nil
}

// AudioChunks returns the session's audio chunks sorted by ascending
// index, keeping only finalized .ogg chunk files.
func (m *RecordingMeta) AudioChunks() []Chunk {
	out := make([]Chunk, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		if strings.HasSuffix(strings.ToLower(strings.TrimSpace(c.File)), ".ogg") {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ChunkFileName renders the canonical chunk file name for a 1-based index.
func ChunkFileName(index int, suffix string) string {
	if index < 1 {
		index = 1
	}
	return fmt.Sprintf("chunk_%03d%s", index, suffix)
}
