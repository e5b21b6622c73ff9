package pipeline

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/recordings"
	"github.com/lemonhall/radioscribe/internal/transcript"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

// Translated segments carried forward as cross-chunk context.
const contextWindow = 24

// Gate verifies both provider credentials before the pipeline touches
// any session state.
type Gate interface {
	RequireASR() error
	RequireTranslation() error
}

// RunRequest describes one pipeline run over a whole session.
type RunRequest struct {
	SessionID      string
	Dir            string
	SourceLanguage string
	TargetLanguage string
}

// Result summarizes a finished run.
type Result struct {
	SessionID         string
	TotalChunks       int
	TranscribedChunks int
	TranslatedChunks  int
	FailedChunks      int
	TranscriptState   string
	TranslationState  string
	LastError         *model.ErrorInfo
}

// Runner executes the transcribe-then-translate pipeline chunk by
// chunk, persisting progress into the session metadata. A failed chunk
// does not stop the run; remaining chunks still get their shot, and a
// later run retries only what is missing.
type Runner struct {
	ws        workspace.Workspace
	resolver  recordings.Resolver
	processor *transcript.Processor
	gate      Gate
	log       zerolog.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(
	ws workspace.Workspace,
	resolver recordings.Resolver,
	processor *transcript.Processor,
	gate Gate,
	log zerolog.Logger,
) *Runner {
	return &Runner{ws: ws, resolver: resolver, processor: processor, gate: gate, log: log}
}

// Run processes every chunk of the session.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*Result, error) {
	target := strings.TrimSpace(req.TargetLanguage)
	if target == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing target language")
	}
	rawSource := strings.TrimSpace(req.SourceLanguage)
	sourceLang := model.NormalizeSourceLanguage(&rawSource)

	var ref recordings.SessionRef
	var err error
	if strings.TrimSpace(req.Dir) != "" {
		ref, err = r.resolver.ResolveDir(req.Dir)
	} else {
		ref, err = r.resolver.Resolve(req.SessionID)
	}
	if err != nil {
		return nil, err
	}

	meta, err := recordings.ReadMeta(r.ws, ref)
	if err != nil {
		return nil, err
	}
	state := strings.ToLower(strings.TrimSpace(meta.State))
	if state == model.SessionStateRecording || state == model.SessionStatePending {
		return nil, errors.Newf(errors.CodeSessionStillRecording, "session %s is still recording, stop recording first", ref.SessionID)
	}
	chunks := meta.AudioChunks()
	if len(chunks) == 0 {
		return nil, errors.Newf(errors.CodeSessionNoChunks, "session %s has no chunks", ref.SessionID)
	}
	if meta.Pipeline != nil &&
		(meta.Pipeline.TranscriptState == model.PipelineStateRunning || meta.Pipeline.TranslationState == model.PipelineStateRunning) {
		return nil, errors.Newf(errors.CodePipelineRunning, "pipeline already running for session %s", ref.SessionID)
	}

	if err := r.gate.RequireASR(); err != nil {
		return nil, err
	}
	if err := r.gate.RequireTranslation(); err != nil {
		return nil, err
	}

	// Progress comes from artifacts on disk, never from stale counters.
	ps := &model.PipelineState{
		TargetLanguage:    &target,
		TranscriptState:   model.PipelineStateRunning,
		TranslationState:  model.PipelineStateRunning,
		TranscribedChunks: r.countExisting(ref, chunks, ref.TranscriptChunkPath),
		TranslatedChunks:  r.countExisting(ref, chunks, ref.TranslationChunkPath),
	}
	meta.Pipeline = ps
	if err := recordings.WriteMeta(r.ws, ref, meta); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("sessionId", ref.SessionID).
		Str("targetLanguage", target).
		Int("totalChunks", len(chunks)).
		Int("transcribedChunks", ps.TranscribedChunks).
		Int("translatedChunks", ps.TranslatedChunks).
		Msg("pipeline run started")

	var window []model.TranslatedSegment
	for _, c := range chunks {
		if ctx.Err() != nil {
			ps.TranscriptState = model.PipelineStateFailed
			ps.TranslationState = model.PipelineStateFailed
			if werr := recordings.WriteMeta(r.ws, ref, meta); werr != nil {
				return nil, werr
			}
			return nil, ctx.Err()
		}

		outcome, err := r.processor.Process(ctx, transcript.ChunkJob{
			Ref:            ref,
			ChunkIndex:     c.Index,
			AudioFile:      c.File,
			SourceLanguage: sourceLang,
			TargetLanguage: target,
			PriorContext:   window,
		})
		if err != nil {
			ps.FailedChunks++
			ps.LastError = classifyFailure(err)
			r.log.Warn().
				Str("sessionId", ref.SessionID).
				Int("chunk", c.Index).
				Str("code", ps.LastError.Code).
				Msg("chunk failed, continuing")
			if werr := recordings.WriteMeta(r.ws, ref, meta); werr != nil {
				return nil, werr
			}
			continue
		}
		if outcome.TranscriptWritten {
			ps.TranscribedChunks++
		}
		if outcome.TranslationWritten {
			ps.TranslatedChunks++
		}
		window = model.AppendContext(window, outcome.Translated, contextWindow)
		if err := recordings.WriteMeta(r.ws, ref, meta); err != nil {
			return nil, err
		}
	}

	ps.TranscriptState = terminalState(ps.TranscribedChunks, len(chunks))
	ps.TranslationState = terminalState(ps.TranslatedChunks, len(chunks))
	if err := recordings.WriteMeta(r.ws, ref, meta); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("sessionId", ref.SessionID).
		Str("transcriptState", ps.TranscriptState).
		Str("translationState", ps.TranslationState).
		Int("failedChunks", ps.FailedChunks).
		Msg("pipeline run finished")

	return &Result{
		SessionID:         ref.SessionID,
		TotalChunks:       len(chunks),
		TranscribedChunks: ps.TranscribedChunks,
		TranslatedChunks:  ps.TranslatedChunks,
		FailedChunks:      ps.FailedChunks,
		TranscriptState:   ps.TranscriptState,
		TranslationState:  ps.TranslationState,
		LastError:         ps.LastError,
	}, nil
}

func (r *Runner) countExisting(ref recordings.SessionRef, chunks []model.Chunk, path func(int) string) int {
	n := 0
	for _, c := range chunks {
		if r.ws.Exists(path(c.Index)) {
			n++
		}
	}
	return n
}

func terminalState(done, total int) string {
	if done >= total {
		return model.PipelineStateCompleted
	}
	return model.PipelineStateFailed
}

func classifyFailure(err error) *model.ErrorInfo {
	code := errors.Code(err, errors.CodeInternal)
	msg := strings.TrimSpace(errors.Message(err))
	if rc := errors.RemoteCode(err); rc != "" && (code == errors.CodeAsrRemoteError || code == errors.CodeLlmRemoteError) {
		msg = "remote_code=" + rc + ": " + msg
	}
	info := &model.ErrorInfo{Code: code}
	if msg != "" {
		info.Message = &msg
	}
	return info
}
