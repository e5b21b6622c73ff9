package model

import (
	"encoding/json"
	"strings"

	"github.com/lemonhall/radioscribe/internal/errors"
)

// Schema tags for transcript task artifacts.
const (
	SchemaTranscriptTask  = "radioscribe/transcript-task@v1"
	SchemaTasksIndex      = "radioscribe/transcript-tasks-index@v1"
	SchemaTranscriptChunk = "radioscribe/transcript-chunk@v1"
)

// Transcript task states.
const (
	TaskStatePending   = "pending"
	TaskStateRunning   = "running"
	TaskStateCompleted = "completed"
	TaskStateFailed    = "failed"
	TaskStateCancelled = "cancelled"
)

// TranscriptTask is one resumable transcription job for a session.
// SourceLanguage nil means "let the ASR provider auto-detect".
// TargetLanguage empty means the task transcribes only; when set, each
// chunk is also translated as part of the run.
type TranscriptTask struct {
	Schema            string     `json:"schema"`
	TaskID            string     `json:"taskId"`
	SessionID         string     `json:"sessionId"`
	State             string     `json:"state"`
	SourceLanguage    *string    `json:"sourceLanguage"`
	TargetLanguage    string     `json:"targetLanguage,omitempty"`
	TotalChunks       int        `json:"totalChunks"`
	TranscribedChunks int        `json:"transcribedChunks"`
	FailedChunks      int        `json:"failedChunks"`
	CreatedAt         string     `json:"createdAt"`
	UpdatedAt         string     `json:"updatedAt"`
	LastError         *ErrorInfo `json:"lastError"`
}

// Terminal reports whether the task reached a state no run loop advances.
// Failed and cancelled tasks stay resumable via a fresh run call.
func (t *TranscriptTask) Terminal() bool {
	return t.State == TaskStateCompleted || t.State == TaskStateFailed || t.State == TaskStateCancelled
}

// Active reports whether the task is pending or running.
func (t *TranscriptTask) Active() bool {
	return t.State == TaskStatePending || t.State == TaskStateRunning
}

// ParseTranscriptTask decodes and validates a _task.json document.
func ParseTranscriptTask(raw []byte) (*TranscriptTask, error) {
	var task TranscriptTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgs, "invalid _task.json (expected json object)")
	}
	if task.Schema != SchemaTranscriptTask {
		return nil, errors.Newf(errors.CodeInvalidArgs, "unsupported task schema: %s", task.Schema)
	}
	return &task, nil
}

// TaskEntry is the per-task summary kept in the tasks index for discovery
// without opening every task's detail file.
type TaskEntry struct {
	TaskID            string  `json:"taskId"`
	SessionID         string  `json:"sessionId"`
	State             string  `json:"state"`
	SourceLanguage    *string `json:"sourceLanguage,omitempty"`
	TargetLanguage    string  `json:"targetLanguage,omitempty"`
	TotalChunks       int     `json:"totalChunks"`
	TranscribedChunks int     `json:"transcribedChunks"`
	FailedChunks      int     `json:"failedChunks"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// TasksIndex is the per-session task registry. Entries are added on task
// creation and updated in place on state change, never dropped.
type TasksIndex struct {
	Schema         string      `json:"schema"`
	GeneratedAtSec int64       `json:"generatedAtSec"`
	Tasks          []TaskEntry `json:"tasks"`
}

// ParseTasksIndex decodes and validates a _tasks.index.json document.
func ParseTasksIndex(raw []byte) (*TasksIndex, error) {
	var idx TasksIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgs, "invalid _tasks.index.json (expected json object)")
	}
	if idx.Schema != SchemaTasksIndex {
		return nil, errors.Newf(errors.CodeInvalidArgs, "unsupported index schema: %s", idx.Schema)
	}
	return &idx, nil
}

// Find returns the entry for taskID, or nil.
func (x *TasksIndex) Find(taskID string) *TaskEntry {
	for i := range x.Tasks {
		if x.Tasks[i].TaskID == taskID {
			return &x.Tasks[i]
		}
	}
	return nil
}

// EntryFor builds the index summary for a task.
func EntryFor(task *TranscriptTask) TaskEntry {
	return TaskEntry{
		TaskID:            task.TaskID,
		SessionID:         task.SessionID,
		State:             task.State,
		SourceLanguage:    task.SourceLanguage,
		TargetLanguage:    task.TargetLanguage,
		TotalChunks:       task.TotalChunks,
		TranscribedChunks: task.TranscribedChunks,
		FailedChunks:      task.FailedChunks,
		CreatedAt:         task.CreatedAt,
		UpdatedAt:         task.UpdatedAt,
	}
}

// TranscriptSegment is one time-aligned sentence of a chunk transcript.
type TranscriptSegment struct {
	ID      int    `json:"id"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

// TranscriptChunk is the per-chunk transcript artifact. Its existence on
// disk is the ground truth for "this chunk is transcribed".
type TranscriptChunk struct {
	Schema           string              `json:"schema"`
	TaskID           string              `json:"taskId,omitempty"`
	SessionID        string              `json:"sessionId"`
	ChunkIndex       int                 `json:"chunkIndex"`
	DetectedLanguage string              `json:"detectedLanguage,omitempty"`
	Segments         []TranscriptSegment `json:"segments"`
}

// ParseTranscriptChunk decodes and validates a chunk transcript document.
func ParseTranscriptChunk(raw []byte) (*TranscriptChunk, error) {
	var chunk TranscriptChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidArgs, "invalid transcript json (expected json object)")
	}
	if chunk.Schema != SchemaTranscriptChunk {
		return nil, errors.Newf(errors.CodeInvalidArgs, "unsupported transcript schema: %s", chunk.Schema)
	}
	return &chunk, nil
}

// NormalizeSourceLanguage maps the textual language hint to its internal
// form: "auto" and the literal "null" (any case) both mean auto-detect
// and normalize to nil. Anything else passes through trimmed.
func NormalizeSourceLanguage(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" || strings.EqualFold(v, "auto") || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
