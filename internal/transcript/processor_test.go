package transcript

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/recordings"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) TranslateBatch(
	ctx context.Context,
	segments []model.TranscriptSegment,
	prior []model.TranslatedSegment,
	sourceLanguage, targetLanguage string,
) ([]model.TranslatedSegment, error) {
	args := m.Called(ctx, segments, prior, sourceLanguage, targetLanguage)
	if r := args.Get(0); r != nil {
		return r.([]model.TranslatedSegment), args.Error(1)
	}
	return nil, args.Error(1)
}

func newProcessorFixture(t *testing.T, translator *mockTranslator) (*Processor, *mockASRClient, workspace.Workspace, recordings.SessionRef) {
	t.Helper()
	ws, err := workspace.NewDir(t.TempDir())
	require.NoError(t, err)
	asrClient := &mockASRClient{}
	ref := recordings.SessionRef{RootDir: recordings.RadioRootDir, SessionID: "s1"}
	require.NoError(t, ws.WriteFile(ref.AudioChunkPath(1), []byte("ogg")))
	var p *Processor
	if translator != nil {
		p = NewProcessor(ws, asrClient, translator, zerolog.Nop())
	} else {
		p = NewProcessor(ws, asrClient, nil, zerolog.Nop())
	}
	return p, asrClient, ws, ref
}

func TestProcessWritesTaskTranscript(t *testing.T) {
	p, asrClient, ws, ref := newProcessorFixture(t, nil)
	asrClient.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("hello"), nil).Once()

	outcome, err := p.Process(context.Background(), ChunkJob{
		Ref:        ref,
		TaskID:     "tx_1",
		ChunkIndex: 1,
		AudioFile:  "chunk_001.ogg",
	})
	require.NoError(t, err)
	assert.True(t, outcome.TranscriptWritten)
	assert.False(t, outcome.TranslationWritten)

	raw, err := ws.ReadFile(ref.TaskTranscriptChunkPath("tx_1", 1))
	require.NoError(t, err)
	chunk, err := model.ParseTranscriptChunk(raw)
	require.NoError(t, err)
	assert.Equal(t, model.SchemaTranscriptChunk, chunk.Schema)
	assert.Equal(t, "tx_1", chunk.TaskID)
	assert.Equal(t, "s1", chunk.SessionID)
	assert.Equal(t, "ja", chunk.DetectedLanguage)
	require.Len(t, chunk.Segments, 1)
	assert.Equal(t, "hello", chunk.Segments[0].Text)
}

func TestProcessSkipsExistingTranscript(t *testing.T) {
	p, asrClient, ws, ref := newProcessorFixture(t, nil)

	existing := &model.TranscriptChunk{
		Schema:     model.SchemaTranscriptChunk,
		TaskID:     "tx_1",
		SessionID:  "s1",
		ChunkIndex: 1,
		Segments:   []model.TranscriptSegment{{ID: 0, Text: "already"}},
	}
	data, err := model.MarshalPretty(existing)
	require.NoError(t, err)
	require.NoError(t, ws.WriteFile(ref.TaskTranscriptChunkPath("tx_1", 1), data))

	outcome, err := p.Process(context.Background(), ChunkJob{
		Ref:        ref,
		TaskID:     "tx_1",
		ChunkIndex: 1,
		AudioFile:  "chunk_001.ogg",
	})
	require.NoError(t, err)
	assert.False(t, outcome.TranscriptWritten)
	asrClient.AssertNotCalled(t, "Transcribe")
}

func TestProcessMissingAudio(t *testing.T) {
	p, asrClient, _, ref := newProcessorFixture(t, nil)

	_, err := p.Process(context.Background(), ChunkJob{
		Ref:        ref,
		TaskID:     "tx_1",
		ChunkIndex: 2,
		AudioFile:  "chunk_002.ogg",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSessionNoChunks, errors.Code(err, ""))
	asrClient.AssertNotCalled(t, "Transcribe")
}

func TestProcessTranscribesAndTranslates(t *testing.T) {
	translator := &mockTranslator{}
	p, asrClient, ws, ref := newProcessorFixture(t, translator)

	asrClient.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("hello"), nil).Once()
	translated := []model.TranslatedSegment{{ID: 0, SourceText: "hello", TranslatedText: "bonjour"}}
	translator.On("TranslateBatch", mock.Anything, mock.Anything, mock.Anything, "ja", "fr").Return(translated, nil).Once()

	outcome, err := p.Process(context.Background(), ChunkJob{
		Ref:            ref,
		ChunkIndex:     1,
		AudioFile:      "chunk_001.ogg",
		TargetLanguage: "fr",
	})
	require.NoError(t, err)
	assert.True(t, outcome.TranscriptWritten)
	assert.True(t, outcome.TranslationWritten)
	assert.Equal(t, translated, outcome.Translated)

	// Pipeline mode writes into the session-level directories.
	assert.True(t, ws.Exists(ref.TranscriptChunkPath(1)))
	raw, err := ws.ReadFile(ref.TranslationChunkPath(1))
	require.NoError(t, err)
	doc, err := model.ParseTranslationChunk(raw)
	require.NoError(t, err)
	assert.Equal(t, "ja", doc.SourceLanguage)
	assert.Equal(t, "fr", doc.TargetLanguage)
	require.Len(t, doc.Segments, 1)
	assert.Equal(t, "bonjour", doc.Segments[0].TranslatedText)
}

func TestProcessReloadsExistingTranslationForContext(t *testing.T) {
	translator := &mockTranslator{}
	p, asrClient, ws, ref := newProcessorFixture(t, translator)

	asrClient.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("hello"), nil).Once()

	prior := &model.TranslationChunk{
		Schema:         model.SchemaTranslationChunk,
		SessionID:      "s1",
		ChunkIndex:     1,
		SourceLanguage: "ja",
		TargetLanguage: "fr",
		Segments:       []model.TranslatedSegment{{ID: 0, TranslatedText: "deja fait"}},
	}
	data, err := model.MarshalPretty(prior)
	require.NoError(t, err)
	require.NoError(t, ws.WriteFile(ref.TranslationChunkPath(1), data))

	outcome, err := p.Process(context.Background(), ChunkJob{
		Ref:            ref,
		ChunkIndex:     1,
		AudioFile:      "chunk_001.ogg",
		TargetLanguage: "fr",
	})
	require.NoError(t, err)
	assert.False(t, outcome.TranslationWritten)
	require.Len(t, outcome.Translated, 1)
	assert.Equal(t, "deja fait", outcome.Translated[0].TranslatedText)
	translator.AssertNotCalled(t, "TranslateBatch")
}

func TestProcessTranslationWithoutTranslator(t *testing.T) {
	p, asrClient, _, ref := newProcessorFixture(t, nil)
	asrClient.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("x"), nil).Once()

	_, err := p.Process(context.Background(), ChunkJob{
		Ref:            ref,
		ChunkIndex:     1,
		AudioFile:      "chunk_001.ogg",
		TargetLanguage: "fr",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgs, errors.Code(err, ""))
}

func TestProcessUnknownSourceFallsBackToAuto(t *testing.T) {
	translator := &mockTranslator{}
	p, asrClient, _, ref := newProcessorFixture(t, translator)

	result := singleSegmentResult("hola")
	result.DetectedLanguage = ""
	asrClient.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(result, nil).Once()
	translator.On("TranslateBatch", mock.Anything, mock.Anything, mock.Anything, "auto", "en").
		Return([]model.TranslatedSegment{{ID: 0, TranslatedText: "hi"}}, nil).Once()

	_, err := p.Process(context.Background(), ChunkJob{
		Ref:            ref,
		ChunkIndex:     1,
		AudioFile:      "chunk_001.ogg",
		TargetLanguage: "en",
	})
	require.NoError(t, err)
	translator.AssertExpectations(t)
}
