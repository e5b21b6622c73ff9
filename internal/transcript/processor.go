package transcript

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lemonhall/radioscribe/internal/asr"
	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/recordings"
	"github.com/lemonhall/radioscribe/internal/translation"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

// ChunkJob describes one chunk to process. TaskID selects the task
// output namespace; when empty, outputs land in the session's shared
// transcripts/translations directories (pipeline mode). TargetLanguage
// empty means transcript only.
type ChunkJob struct {
	Ref            recordings.SessionRef
	TaskID         string
	ChunkIndex     int
	AudioFile      string
	SourceLanguage *string
	TargetLanguage string
	PriorContext   []model.TranslatedSegment
}

// ChunkOutcome reports what Process did for one chunk.
type ChunkOutcome struct {
	TranscriptWritten  bool
	TranslationWritten bool
	// Translated holds the chunk's translated segments, whether produced
	// now or reloaded from an existing artifact, for context chaining.
	Translated []model.TranslatedSegment
}

// Processor runs the per-chunk work: transcribe if the transcript
// artifact is missing, then translate if asked and the translation
// artifact is missing. Artifact existence on disk is the only skip
// signal, which is what makes runs resumable after a crash.
type Processor struct {
	ws         workspace.Workspace
	asr        asr.Client
	translator translation.Client
	log        zerolog.Logger
}

// NewProcessor creates a chunk processor. translator may be nil when
// translation is never requested.
func NewProcessor(ws workspace.Workspace, asrClient asr.Client, translator translation.Client, log zerolog.Logger) *Processor {
	return &Processor{ws: ws, asr: asrClient, translator: translator, log: log}
}

func (p *Processor) transcriptPath(job ChunkJob) string {
	if job.TaskID != "" {
		return job.Ref.TaskTranscriptChunkPath(job.TaskID, job.ChunkIndex)
	}
	return job.Ref.TranscriptChunkPath(job.ChunkIndex)
}

// Process handles one chunk end to end.
func (p *Processor) Process(ctx context.Context, job ChunkJob) (*ChunkOutcome, error) {
	outcome := &ChunkOutcome{}

	chunk, err := p.ensureTranscript(ctx, job, outcome)
	if err != nil {
		return nil, err
	}
	if job.TargetLanguage == "" {
		return outcome, nil
	}
	if err := p.ensureTranslation(ctx, job, chunk, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (p *Processor) ensureTranscript(ctx context.Context, job ChunkJob, outcome *ChunkOutcome) (*model.TranscriptChunk, error) {
	path := p.transcriptPath(job)
	if p.ws.Exists(path) {
		raw, err := p.ws.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return model.ParseTranscriptChunk(raw)
	}

	audioPath := job.Ref.AudioFilePath(job.AudioFile)
	if !p.ws.Exists(audioPath) {
		return nil, errors.Newf(errors.CodeSessionNoChunks, "missing chunk audio file: %s", job.AudioFile)
	}

	p.log.Info().
		Str("sessionId", job.Ref.SessionID).
		Int("chunk", job.ChunkIndex).
		Msg("transcribing chunk")

	result, err := p.asr.Transcribe(ctx, p.ws.Path(audioPath), job.SourceLanguage)
	if err != nil {
		return nil, err
	}

	chunk := &model.TranscriptChunk{
		Schema:           model.SchemaTranscriptChunk,
		TaskID:           job.TaskID,
		SessionID:        job.Ref.SessionID,
		ChunkIndex:       job.ChunkIndex,
		DetectedLanguage: strings.TrimSpace(result.DetectedLanguage),
		Segments:         toTranscriptSegments(result.Segments),
	}
	data, err := model.MarshalPretty(chunk)
	if err != nil {
		return nil, err
	}
	if err := p.ws.WriteFileAtomic(path, data); err != nil {
		return nil, err
	}
	outcome.TranscriptWritten = true
	return chunk, nil
}

func (p *Processor) ensureTranslation(ctx context.Context, job ChunkJob, chunk *model.TranscriptChunk, outcome *ChunkOutcome) error {
	path := job.Ref.TranslationChunkPath(job.ChunkIndex)
	if p.ws.Exists(path) {
		raw, err := p.ws.ReadFile(path)
		if err != nil {
			return err
		}
		existing, err := model.ParseTranslationChunk(raw)
		if err != nil {
			return err
		}
		outcome.Translated = existing.Segments
		return nil
	}
	if p.translator == nil {
		return errors.New(errors.CodeInvalidArgs, "translation requested but no translator configured")
	}

	sourceLanguage := chunk.DetectedLanguage
	if sourceLanguage == "" {
		sourceLanguage = "auto"
	}

	p.log.Info().
		Str("sessionId", job.Ref.SessionID).
		Int("chunk", job.ChunkIndex).
		Str("targetLanguage", job.TargetLanguage).
		Msg("translating chunk")

	translated, err := p.translator.TranslateBatch(ctx, chunk.Segments, job.PriorContext, sourceLanguage, job.TargetLanguage)
	if err != nil {
		return err
	}

	doc := &model.TranslationChunk{
		Schema:         model.SchemaTranslationChunk,
		SessionID:      job.Ref.SessionID,
		ChunkIndex:     job.ChunkIndex,
		SourceLanguage: sourceLanguage,
		TargetLanguage: job.TargetLanguage,
		Segments:       translated,
	}
	data, err := model.MarshalPretty(doc)
	if err != nil {
		return err
	}
	if err := p.ws.WriteFileAtomic(path, data); err != nil {
		return err
	}
	outcome.TranslationWritten = true
	outcome.Translated = translated
	return nil
}

func toTranscriptSegments(in []asr.Segment) []model.TranscriptSegment {
	out := make([]model.TranscriptSegment, 0, len(in))
	for _, s := range in {
		out = append(out, model.TranscriptSegment{
			ID:      s.ID,
			StartMs: s.StartMs,
			EndMs:   s.EndMs,
			Text:    s.Text,
			Emotion: s.Emotion,
		})
	}
	return out
}
