package recordings

import (
	"path"

	"github.com/lemonhall/radioscribe/internal/model"
)

// Artifact file and directory names inside a session directory.
const (
	MetaFileName        = "_meta.json"
	TranscriptsDirName  = "transcripts"
	TranslationsDirName = "translations"
	TasksIndexFileName  = "_tasks.index.json"
	TaskFileName        = "_task.json"
	TaskStatusFileName  = "_STATUS.md"

	TranscriptSuffix  = ".transcript.json"
	TranslationSuffix = ".translation.json"
	AudioSuffix       = ".ogg"
)

// SessionRef locates one recording session inside the workspace and
// renders every artifact path of the session layout. All paths are
// workspace-relative.
type SessionRef struct {
	RootDir   string
	SessionID string
}

// Dir is the session directory.
func (r SessionRef) Dir() string {
	return path.Join(r.RootDir, r.SessionID)
}

// MetaPath is the session metadata document.
func (r SessionRef) MetaPath() string {
	return path.Join(r.Dir(), MetaFileName)
}

// AudioChunkPath is the audio file for a 1-based chunk index.
func (r SessionRef) AudioChunkPath(index int) string {
	return path.Join(r.Dir(), model.ChunkFileName(index, AudioSuffix))
}

// AudioFilePath resolves a chunk file name from session metadata.
func (r SessionRef) AudioFilePath(file string) string {
	return path.Join(r.Dir(), file)
}

// TranscriptsDir holds pipeline transcripts and all task directories.
func (r SessionRef) TranscriptsDir() string {
	return path.Join(r.Dir(), TranscriptsDirName)
}

// TranslationsDir holds pipeline translations.
func (r SessionRef) TranslationsDir() string {
	return path.Join(r.Dir(), TranslationsDirName)
}

// TranscriptChunkPath is the pipeline-mode transcript for a chunk.
func (r SessionRef) TranscriptChunkPath(index int) string {
	return path.Join(r.TranscriptsDir(), model.ChunkFileName(index, TranscriptSuffix))
}

// TranslationChunkPath is the pipeline-mode translation for a chunk.
func (r SessionRef) TranslationChunkPath(index int) string {
	return path.Join(r.TranslationsDir(), model.ChunkFileName(index, TranslationSuffix))
}

// TasksIndexPath is the per-session task registry.
func (r SessionRef) TasksIndexPath() string {
	return path.Join(r.TranscriptsDir(), TasksIndexFileName)
}

// TaskDir is the output namespace of one transcript task.
func (r SessionRef) TaskDir(taskID string) string {
	return path.Join(r.TranscriptsDir(), taskID)
}

// TaskPath is the task detail document.
func (r SessionRef) TaskPath(taskID string) string {
	return path.Join(r.TaskDir(taskID), TaskFileName)
}

// TaskStatusPath is the human-readable task status note.
func (r SessionRef) TaskStatusPath(taskID string) string {
	return path.Join(r.TaskDir(taskID), TaskStatusFileName)
}

// TaskTranscriptChunkPath is the task-namespaced transcript for a chunk.
func (r SessionRef) TaskTranscriptChunkPath(taskID string, index int) string {
	return path.Join(r.TaskDir(taskID), model.ChunkFileName(index, TranscriptSuffix))
}
