package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/recordings"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

// Translated segments carried forward as cross-chunk context.
const contextWindow = 24

// CredentialGate verifies provider credentials before any task artifact
// is created, so misconfiguration fails fast instead of leaving a task
// that can never run. RequireTranslation is only consulted for tasks
// with a target language.
type CredentialGate interface {
	RequireASR() error
	RequireTranslation() error
}

// StartRequest describes a task creation. Dir, when set, bypasses the
// session id lookup and opens the session by explicit directory.
// TargetLanguage empty creates a transcript-only task; when set, the run
// also translates each chunk.
type StartRequest struct {
	SessionID      string
	Dir            string
	SourceLanguage string
	TargetLanguage string
	Force          bool
}

// Manager owns the transcript task lifecycle: creation with preflight
// checks, the resumable run loop, cancellation, retry, and listing.
type Manager struct {
	ws        workspace.Workspace
	resolver  recordings.Resolver
	store     *Store
	processor *Processor
	gate      CredentialGate
	log       zerolog.Logger
}

// NewManager creates a task manager.
func NewManager(
	ws workspace.Workspace,
	resolver recordings.Resolver,
	store *Store,
	processor *Processor,
	gate CredentialGate,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		ws:        ws,
		resolver:  resolver,
		store:     store,
		processor: processor,
		gate:      gate,
		log:       log,
	}
}

func (m *Manager) resolve(sessionID, dir string) (recordings.SessionRef, error) {
	if strings.TrimSpace(dir) != "" {
		return m.resolver.ResolveDir(dir)
	}
	return m.resolver.Resolve(sessionID)
}

// validateSession checks the session is transcribable and returns its
// audio chunks.
func (m *Manager) validateSession(ref recordings.SessionRef) ([]model.Chunk, error) {
	meta, err := recordings.ReadMeta(m.ws, ref)
	if err != nil {
		return nil, errors.Newf(errors.CodeSessionNotFound, "invalid session meta: %s", ref.SessionID)
	}
	state := strings.ToLower(strings.TrimSpace(meta.State))
	if state == model.SessionStateRecording || state == model.SessionStatePending {
		return nil, errors.Newf(errors.CodeSessionStillRecording, "session %s is still recording, stop recording first", ref.SessionID)
	}
	chunks := meta.AudioChunks()
	if len(chunks) == 0 {
		return nil, errors.Newf(errors.CodeSessionNoChunks, "session %s has no chunks", ref.SessionID)
	}
	return chunks, nil
}

// Start creates (or, with Force, reuses and resets) a transcript task.
// Preflight order matters: session problems surface before credential
// problems, and both before any task file exists.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*model.TranscriptTask, error) {
	rawLang := strings.TrimSpace(req.SourceLanguage)
	if rawLang == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing source language")
	}
	lang := model.NormalizeSourceLanguage(&rawLang)
	target := strings.TrimSpace(req.TargetLanguage)

	ref, err := m.resolve(req.SessionID, req.Dir)
	if err != nil {
		return nil, err
	}
	chunks, err := m.validateSession(ref)
	if err != nil {
		return nil, err
	}
	if err := m.gate.RequireASR(); err != nil {
		return nil, err
	}
	if target != "" {
		if err := m.gate.RequireTranslation(); err != nil {
			return nil, err
		}
	}
	if err := m.store.EnsureSessionRoot(ref); err != nil {
		return nil, err
	}

	idx, err := m.store.ReadTasksIndex(ref)
	if err != nil {
		return nil, err
	}
	var activeSameLang, latestSameLang *model.TaskEntry
	for i := range idx.Tasks {
		e := &idx.Tasks[i]
		if !sameLanguage(e.SourceLanguage, lang) || e.TargetLanguage != target {
			continue
		}
		if activeSameLang == nil && (e.State == model.TaskStatePending || e.State == model.TaskStateRunning) {
			activeSameLang = e
		}
		if latestSameLang == nil || e.UpdatedAt > latestSameLang.UpdatedAt {
			latestSameLang = e
		}
	}
	if activeSameLang != nil && !req.Force {
		return nil, errors.Newf(errors.CodeTaskAlreadyExists,
			"task already exists for session=%s source_lang=%s: %s",
			ref.SessionID, languageLabel(lang), activeSameLang.TaskID)
	}

	if req.Force {
		reuse := activeSameLang
		if reuse == nil {
			reuse = latestSameLang
		}
		if reuse != nil {
			return m.resetTaskOutputs(ref, reuse.TaskID)
		}
	}
	task, err := m.store.CreateTask(ref, m.store.AllocateTaskID(), lang, target, len(chunks))
	if err != nil {
		return nil, err
	}
	m.log.Info().
		Str("sessionId", ref.SessionID).
		Str("taskId", task.TaskID).
		Str("sourceLanguage", languageLabel(lang)).
		Str("targetLanguage", target).
		Int("totalChunks", task.TotalChunks).
		Msg("transcript task created")
	return task, nil
}

// RunTask executes a task's chunk loop. Progress is recomputed from the
// artifacts on disk before the loop starts, so a crashed or cancelled
// run resumes where it left off. The loop stops at the first failure,
// persisting the classified error on the task. Tasks with a target
// language translate each chunk right after transcribing it, carrying a
// bounded window of prior translations as context.
func (m *Manager) RunTask(ctx context.Context, ref recordings.SessionRef, taskID string) (*model.TranscriptTask, error) {
	chunks, err := m.validateSession(ref)
	if err != nil {
		return nil, err
	}
	task, err := m.store.ReadTask(ref, taskID)
	if err != nil {
		return nil, err
	}
	if task.TargetLanguage != "" {
		if err := m.gate.RequireTranslation(); err != nil {
			return nil, err
		}
	}
	task.SourceLanguage = model.NormalizeSourceLanguage(task.SourceLanguage)
	task.TotalChunks = len(chunks)
	task.TranscribedChunks = m.countDone(ref, taskID, chunks)
	task.State = model.TaskStateRunning
	if err := m.store.WriteTask(ref, task); err != nil {
		return nil, err
	}
	if err := m.store.WriteTaskStatus(ref, taskID, true, runningNote(task)); err != nil {
		return nil, err
	}

	var window []model.TranslatedSegment
	for _, c := range chunks {
		// A cancel may land between chunks; honor it without touching
		// outputs already written.
		fresh, err := m.store.ReadTask(ref, taskID)
		if err != nil {
			return nil, err
		}
		if fresh.State == model.TaskStateCancelled {
			m.log.Info().Str("taskId", taskID).Msg("task cancelled, stopping run")
			return fresh, nil
		}
		if ctx.Err() != nil {
			return task, ctx.Err()
		}
		if task.TargetLanguage == "" && m.ws.Exists(ref.TaskTranscriptChunkPath(taskID, c.Index)) {
			continue
		}

		outcome, err := m.processor.Process(ctx, ChunkJob{
			Ref:            ref,
			TaskID:         taskID,
			ChunkIndex:     c.Index,
			AudioFile:      c.File,
			SourceLanguage: task.SourceLanguage,
			TargetLanguage: task.TargetLanguage,
			PriorContext:   window,
		})
		if err != nil {
			info := classifyChunkFailure(err)
			task.State = model.TaskStateFailed
			task.FailedChunks++
			task.LastError = info
			if werr := m.store.WriteTask(ref, task); werr != nil {
				return nil, werr
			}
			if werr := m.store.WriteTaskStatus(ref, taskID, false, "failed: "+info.Code); werr != nil {
				return nil, werr
			}
			return task, err
		}
		window = model.AppendContext(window, outcome.Translated, contextWindow)
		if outcome.TranscriptWritten {
			task.TranscribedChunks++
			if task.TranscribedChunks > task.TotalChunks {
				task.TranscribedChunks = task.TotalChunks
			}
			if err := m.store.WriteTask(ref, task); err != nil {
				return nil, err
			}
			if err := m.store.WriteTaskStatus(ref, taskID, true, runningNote(task)); err != nil {
				return nil, err
			}
		}
	}

	task.State = model.TaskStateCompleted
	if err := m.store.WriteTask(ref, task); err != nil {
		return nil, err
	}
	if err := m.store.WriteTaskStatus(ref, taskID, true, completedNote(task)); err != nil {
		return nil, err
	}
	m.log.Info().
		Str("taskId", taskID).
		Int("transcribedChunks", task.TranscribedChunks).
		Msg("transcript task completed")
	return task, nil
}

// Run resolves the session and runs the task.
func (m *Manager) Run(ctx context.Context, sessionID, dir, taskID string) (*model.TranscriptTask, error) {
	ref, err := m.resolve(sessionID, dir)
	if err != nil {
		return nil, err
	}
	if err := m.gate.RequireASR(); err != nil {
		return nil, err
	}
	return m.RunTask(ctx, ref, taskID)
}

// FindTaskByID scans every session across the roots for the task.
func (m *Manager) FindTaskByID(taskID string) (recordings.SessionRef, *model.TranscriptTask, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return recordings.SessionRef{}, nil, errors.New(errors.CodeInvalidArgs, "missing taskId")
	}
	refs, err := m.resolver.Sessions()
	if err != nil {
		return recordings.SessionRef{}, nil, err
	}
	for _, ref := range refs {
		if !m.ws.Exists(ref.TaskPath(taskID)) {
			continue
		}
		task, err := m.store.ReadTask(ref, taskID)
		if err != nil {
			return recordings.SessionRef{}, nil, err
		}
		return ref, task, nil
	}
	return recordings.SessionRef{}, nil, errors.Newf(errors.CodeTaskNotFound, "task not found: %s", taskID)
}

// Cancel marks a task cancelled wherever it lives.
func (m *Manager) Cancel(taskID string) (*model.TranscriptTask, error) {
	ref, _, err := m.FindTaskByID(taskID)
	if err != nil {
		return nil, err
	}
	return m.store.CancelTask(ref, taskID)
}

// Retry rewinds a task to pending so the next run picks it up. Existing
// chunk outputs are kept; the run loop skips them.
func (m *Manager) Retry(ref recordings.SessionRef, taskID string) (*model.TranscriptTask, error) {
	if err := m.gate.RequireASR(); err != nil {
		return nil, err
	}
	task, err := m.store.ReadTask(ref, taskID)
	if err != nil {
		return nil, err
	}
	task.State = model.TaskStatePending
	task.LastError = nil
	if err := m.store.WriteTask(ref, task); err != nil {
		return nil, err
	}
	if err := m.store.WriteTaskStatus(ref, taskID, true, "pending (retry)"); err != nil {
		return nil, err
	}
	return task, nil
}

// List returns the session's task registry, creating an empty one for
// sessions that never had a task.
func (m *Manager) List(sessionID, dir string) (*model.TasksIndex, error) {
	ref, err := m.resolve(sessionID, dir)
	if err != nil {
		return nil, err
	}
	if err := m.store.EnsureSessionRoot(ref); err != nil {
		return nil, err
	}
	return m.store.ReadTasksIndex(ref)
}

// resetTaskOutputs clears a task's chunk outputs and rewinds it to
// pending, for forced restarts.
func (m *Manager) resetTaskOutputs(ref recordings.SessionRef, taskID string) (*model.TranscriptTask, error) {
	task, err := m.store.ReadTask(ref, taskID)
	if err != nil {
		return nil, err
	}
	entries, err := m.ws.ListDir(ref.TaskDir(taskID))
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Dir {
			continue
		}
		if isChunkTranscriptName(e.Name) {
			if err := m.ws.Remove(ref.TaskDir(taskID) + "/" + e.Name); err != nil {
				return nil, err
			}
		}
	}

	task.State = model.TaskStatePending
	task.TranscribedChunks = 0
	task.FailedChunks = 0
	task.LastError = nil
	if err := m.store.WriteTask(ref, task); err != nil {
		return nil, err
	}
	if err := m.store.WriteTaskStatus(ref, taskID, true, "pending (forced)"); err != nil {
		return nil, err
	}
	m.log.Info().Str("taskId", taskID).Msg("transcript task reset for forced restart")
	return task, nil
}

// isChunkTranscriptName matches chunk_NNN.transcript.json exactly.
func isChunkTranscriptName(name string) bool {
	const prefix = "chunk_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, recordings.TranscriptSuffix) {
		return false
	}
	digits := name[len(prefix) : len(name)-len(recordings.TranscriptSuffix)]
	if len(digits) != 3 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (m *Manager) countDone(ref recordings.SessionRef, taskID string, chunks []model.Chunk) int {
	done := 0
	for _, c := range chunks {
		if m.ws.Exists(ref.TaskTranscriptChunkPath(taskID, c.Index)) {
			done++
		}
	}
	if done > len(chunks) {
		done = len(chunks)
	}
	return done
}

// classifyChunkFailure maps a chunk failure, ASR or translation side, to
// its persisted form. Remote failures keep the provider's own code in
// the message.
func classifyChunkFailure(err error) *model.ErrorInfo {
	code := errors.Code(err, errors.CodeAsrRemoteError)
	msg := errors.Message(err)
	if code == errors.CodeAsrRemoteError || code == errors.CodeLlmRemoteError {
		if rc := errors.RemoteCode(err); rc != "" {
			msg = "remote_code=" + rc + ": " + msg
		}
	}
	info := &model.ErrorInfo{Code: code}
	msg = strings.TrimSpace(msg)
	if msg != "" {
		info.Message = &msg
	}
	return info
}

func sameLanguage(a *string, b *string) bool {
	na := model.NormalizeSourceLanguage(a)
	if na == nil && b == nil {
		return true
	}
	if na == nil || b == nil {
		return false
	}
	return *na == *b
}

func languageLabel(lang *string) string {
	if lang == nil {
		return "auto"
	}
	return *lang
}

func runningNote(task *model.TranscriptTask) string {
	return fmt.Sprintf("running %d/%d", task.TranscribedChunks, task.TotalChunks)
}

func completedNote(task *model.TranscriptTask) string {
	return fmt.Sprintf("completed %d/%d", task.TranscribedChunks, task.TotalChunks)
}
