package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/recordings"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

const taskIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Store persists transcript tasks, the per-session task index, and the
// human-readable status note. Every write keeps the index entry in sync
// with the task detail document.
type Store struct {
	ws  workspace.Workspace
	now func() time.Time
}

// NewStore creates a task store over the workspace.
func NewStore(ws workspace.Workspace) *Store {
	return NewStoreWithClock(ws, time.Now)
}

// NewStoreWithClock creates a task store with an explicit clock for
// testing.
func NewStoreWithClock(ws workspace.Workspace, now func() time.Time) *Store {
	return &Store{ws: ws, now: now}
}

// AllocateTaskID produces a sortable task id: a timestamp for humans
// plus a random suffix for uniqueness within the same minute.
func (s *Store) AllocateTaskID() string {
	ts := s.now().Format("20060102_1504")
	id := uuid.New()
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = taskIDAlphabet[int(id[i])%len(taskIDAlphabet)]
	}
	return fmt.Sprintf("tx_%s_%s", ts, suffix)
}

// NowSec returns the current unix second, clamped at zero.
func (s *Store) NowSec() int64 {
	sec := s.now().Unix()
	if sec < 0 {
		return 0
	}
	return sec
}

// NowISO returns the current timestamp in artifact format.
func (s *Store) NowISO() string {
	return s.now().Format(time.RFC3339)
}

// EnsureSessionRoot creates the transcripts directory and an empty tasks
// index if absent. Idempotent.
func (s *Store) EnsureSessionRoot(ref recordings.SessionRef) error {
	if err := s.ws.MkdirAll(ref.TranscriptsDir()); err != nil {
		return err
	}
	if s.ws.Exists(ref.TasksIndexPath()) {
		return nil
	}
	return s.WriteTasksIndex(ref, &model.TasksIndex{
		Schema: model.SchemaTasksIndex,
		Tasks:  []model.TaskEntry{},
	})
}

// CreateTask writes a fresh pending task and registers it in the index.
// targetLanguage empty creates a transcript-only task.
func (s *Store) CreateTask(ref recordings.SessionRef, taskID string, sourceLanguage *string, targetLanguage string, totalChunks int) (*model.TranscriptTask, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing taskId")
	}
	if err := s.EnsureSessionRoot(ref); err != nil {
		return nil, err
	}
	idx, err := s.ReadTasksIndex(ref)
	if err != nil {
		return nil, err
	}
	if idx.Find(taskID) != nil {
		return nil, errors.Newf(errors.CodeTaskAlreadyExists, "task already exists: %s", taskID)
	}
	if err := s.ws.MkdirAll(ref.TaskDir(taskID)); err != nil {
		return nil, err
	}

	if totalChunks < 0 {
		totalChunks = 0
	}
	now := s.NowISO()
	task := &model.TranscriptTask{
		Schema:         model.SchemaTranscriptTask,
		TaskID:         taskID,
		SessionID:      ref.SessionID,
		State:          model.TaskStatePending,
		SourceLanguage: model.NormalizeSourceLanguage(sourceLanguage),
		TargetLanguage: strings.TrimSpace(targetLanguage),
		TotalChunks:    totalChunks,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.writeTaskFile(ref, task); err != nil {
		return nil, err
	}
	if err := s.WriteTaskStatus(ref, taskID, true, "pending"); err != nil {
		return nil, err
	}

	idx.GeneratedAtSec = s.NowSec()
	idx.Tasks = append(idx.Tasks, model.EntryFor(task))
	if err := s.WriteTasksIndex(ref, idx); err != nil {
		return nil, err
	}
	return task, nil
}

// ReadTask loads a task detail document.
func (s *Store) ReadTask(ref recordings.SessionRef, taskID string) (*model.TranscriptTask, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing taskId")
	}
	path := ref.TaskPath(taskID)
	if !s.ws.Exists(path) {
		return nil, errors.Newf(errors.CodeTaskNotFound, "task not found: %s", taskID)
	}
	raw, err := s.ws.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return model.ParseTranscriptTask(raw)
}

// WriteTask persists the task and syncs its index entry.
func (s *Store) WriteTask(ref recordings.SessionRef, task *model.TranscriptTask) error {
	task.UpdatedAt = s.NowISO()
	if err := s.writeTaskFile(ref, task); err != nil {
		return err
	}

	idx, err := s.ReadTasksIndex(ref)
	if err != nil {
		return err
	}
	entry := idx.Find(task.TaskID)
	if entry == nil {
		return nil
	}
	*entry = model.EntryFor(task)
	idx.GeneratedAtSec = s.NowSec()
	return s.WriteTasksIndex(ref, idx)
}

func (s *Store) writeTaskFile(ref recordings.SessionRef, task *model.TranscriptTask) error {
	data, err := model.MarshalPretty(task)
	if err != nil {
		return err
	}
	return s.ws.WriteFileAtomic(ref.TaskPath(task.TaskID), data)
}

// CancelTask marks a task cancelled. Chunk outputs already on disk stay
// in place so a later run resumes past them.
func (s *Store) CancelTask(ref recordings.SessionRef, taskID string) (*model.TranscriptTask, error) {
	task, err := s.ReadTask(ref, taskID)
	if err != nil {
		return nil, err
	}
	task.State = model.TaskStateCancelled
	if err := s.WriteTask(ref, task); err != nil {
		return nil, err
	}
	if err := s.WriteTaskStatus(ref, taskID, false, "cancelled"); err != nil {
		return nil, err
	}
	return task, nil
}

// ReadTasksIndex loads the session's task registry, or an empty one if
// the file is absent.
func (s *Store) ReadTasksIndex(ref recordings.SessionRef) (*model.TasksIndex, error) {
	path := ref.TasksIndexPath()
	if !s.ws.Exists(path) {
		return &model.TasksIndex{Schema: model.SchemaTasksIndex, Tasks: []model.TaskEntry{}}, nil
	}
	raw, err := s.ws.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return model.ParseTasksIndex(raw)
}

// WriteTasksIndex persists the session's task registry atomically.
func (s *Store) WriteTasksIndex(ref recordings.SessionRef, idx *model.TasksIndex) error {
	if idx.GeneratedAtSec == 0 {
		idx.GeneratedAtSec = s.NowSec()
	}
	data, err := model.MarshalPretty(idx)
	if err != nil {
		return err
	}
	return s.ws.WriteFileAtomic(ref.TasksIndexPath(), data)
}

// WriteTaskStatus renders the human-readable status note next to the
// task detail document.
func (s *Store) WriteTaskStatus(ref recordings.SessionRef, taskID string, ok bool, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		note = "-"
	}
	content := fmt.Sprintf(
		"# Transcript task status\n\n- task_id: %s\n- session_id: %s\n- ok: %t\n- at: %d\n- note: %s\n",
		taskID, ref.SessionID, ok, s.NowSec(), note,
	)
	return s.ws.WriteFile(ref.TaskStatusPath(taskID), []byte(content))
}
