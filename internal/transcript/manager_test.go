package transcript

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lemonhall/radioscribe/internal/asr"
	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
	"github.com/lemonhall/radioscribe/internal/recordings"
	"github.com/lemonhall/radioscribe/internal/workspace"
)

type mockASRClient struct {
	mock.Mock
}

func (m *mockASRClient) Transcribe(ctx context.Context, audioPath string, language *string) (*asr.Result, error) {
	args := m.Called(ctx, audioPath, language)
	if r := args.Get(0); r != nil {
		return r.(*asr.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

// echoTranslator translates each segment to "T:"+text and records the
// prior-context window it was handed on every call.
type echoTranslator struct {
	calls  int
	priors [][]model.TranslatedSegment
	failOn int
	err    error
}

func (f *echoTranslator) TranslateBatch(
	ctx context.Context,
	segments []model.TranscriptSegment,
	prior []model.TranslatedSegment,
	sourceLanguage, targetLanguage string,
) ([]model.TranslatedSegment, error) {
	f.calls++
	f.priors = append(f.priors, append([]model.TranslatedSegment(nil), prior...))
	if f.failOn != 0 && f.calls == f.failOn {
		return nil, f.err
	}
	out := make([]model.TranslatedSegment, 0, len(segments))
	for _, s := range segments {
		out = append(out, model.TranslatedSegment{
			ID:             s.ID,
			StartMs:        s.StartMs,
			EndMs:          s.EndMs,
			SourceText:     s.Text,
			TranslatedText: "T:" + s.Text,
		})
	}
	return out, nil
}

type allowGate struct{}

func (allowGate) RequireASR() error         { return nil }
func (allowGate) RequireTranslation() error { return nil }

type denyGate struct{}

func (denyGate) RequireASR() error {
	return errors.New(errors.CodeInvalidArgs, "missing DASHSCOPE_API_KEY")
}

func (denyGate) RequireTranslation() error {
	return errors.New(errors.CodeInvalidArgs, "missing OPENAI_API_KEY")
}

type denyTranslationGate struct{}

func (denyTranslationGate) RequireASR() error { return nil }

func (denyTranslationGate) RequireTranslation() error {
	return errors.New(errors.CodeInvalidArgs, "missing OPENAI_API_KEY")
}

func singleSegmentResult(text string) *asr.Result {
	return &asr.Result{
		Segments:         []asr.Segment{{ID: 0, StartMs: 0, EndMs: 1000, Text: text}},
		DetectedLanguage: "ja",
	}
}

func twoSegmentResult(a, b string) *asr.Result {
	return &asr.Result{
		Segments: []asr.Segment{
			{ID: 0, StartMs: 0, EndMs: 1000, Text: a},
			{ID: 1, StartMs: 1000, EndMs: 2000, Text: b},
		},
		DetectedLanguage: "ja",
	}
}

type managerFixture struct {
	ws         workspace.Workspace
	asr        *mockASRClient
	translator *echoTranslator
	manager    *Manager
	store      *Store
}

func newManagerFixture(t *testing.T, gate CredentialGate) *managerFixture {
	t.Helper()
	ws, err := workspace.NewDir(t.TempDir())
	require.NoError(t, err)
	asrClient := &mockASRClient{}
	translator := &echoTranslator{}
	store := NewStore(ws)
	processor := NewProcessor(ws, asrClient, translator, zerolog.Nop())
	manager := NewManager(ws, recordings.NewResolver(ws), store, processor, gate, zerolog.Nop())
	return &managerFixture{ws: ws, asr: asrClient, translator: translator, manager: manager, store: store}
}

func (f *managerFixture) writeSession(t *testing.T, sessionID, state string, chunkCount int) recordings.SessionRef {
	t.Helper()
	ref := recordings.SessionRef{RootDir: recordings.RadioRootDir, SessionID: sessionID}
	meta := &model.RecordingMeta{
		Schema:    model.SchemaRecordingMeta,
		SessionID: sessionID,
		State:     state,
		CreatedAt: "2026-01-01T00:00:00Z",
	}
	for i := 1; i <= chunkCount; i++ {
		file := model.ChunkFileName(i, ".ogg")
		meta.Chunks = append(meta.Chunks, model.Chunk{File: file, Index: i})
		require.NoError(t, f.ws.WriteFile(ref.AudioFilePath(file), []byte("ogg")))
	}
	require.NoError(t, recordings.WriteMeta(f.ws, ref, meta))
	return ref
}

func TestStartCreatesPendingTask(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatePending, task.State)
	assert.Equal(t, 2, task.TotalChunks)
	require.NotNil(t, task.SourceLanguage)
	assert.Equal(t, "ja", *task.SourceLanguage)

	idx, err := f.store.ReadTasksIndex(ref)
	require.NoError(t, err)
	require.NotNil(t, idx.Find(task.TaskID))
	f.asr.AssertNotCalled(t, "Transcribe")
}

func TestStartRequiresSourceLanguage(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "s1", model.SessionStateStopped, 1)

	_, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgs, errors.Code(err, ""))
}

func TestStartUnknownSession(t *testing.T) {
	f := newManagerFixture(t, allowGate{})

	_, err := f.manager.Start(context.Background(), StartRequest{SessionID: "ghost", SourceLanguage: "ja"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSessionNotFound, errors.Code(err, ""))
}

func TestStartSessionStillRecording(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "live", model.SessionStateRecording, 1)

	_, err := f.manager.Start(context.Background(), StartRequest{SessionID: "live", SourceLanguage: "ja"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSessionStillRecording, errors.Code(err, ""))
}

func TestStartSessionWithoutChunks(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "empty", model.SessionStateStopped, 0)

	_, err := f.manager.Start(context.Background(), StartRequest{SessionID: "empty", SourceLanguage: "ja"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSessionNoChunks, errors.Code(err, ""))
}

func TestStartFailsFastOnMissingCredentials(t *testing.T) {
	f := newManagerFixture(t, denyGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 1)

	_, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgs, errors.Code(err, ""))

	// Credential failure happens before any task artifact exists.
	assert.False(t, f.ws.Exists(ref.TranscriptsDir()))
}

func TestStartCredentialCheckAfterSessionValidation(t *testing.T) {
	f := newManagerFixture(t, denyGate{})

	// Session problems must win over credential problems.
	_, err := f.manager.Start(context.Background(), StartRequest{SessionID: "ghost", SourceLanguage: "ja"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSessionNotFound, errors.Code(err, ""))
}

func TestStartDuplicateActiveSameLanguage(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "s1", model.SessionStateStopped, 1)

	first, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)

	_, err = f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTaskAlreadyExists, errors.Code(err, ""))

	// A different language is a different task.
	other, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "en"})
	require.NoError(t, err)
	assert.NotEqual(t, first.TaskID, other.TaskID)
}

func TestStartForceReusesAndResetsTask(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	first, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)

	// Simulate a partially finished run.
	stale, err := f.store.ReadTask(ref, first.TaskID)
	require.NoError(t, err)
	stale.State = model.TaskStateFailed
	stale.TranscribedChunks = 1
	require.NoError(t, f.store.WriteTask(ref, stale))
	require.NoError(t, f.ws.WriteFile(ref.TaskTranscriptChunkPath(first.TaskID, 1), []byte("{}")))

	forced, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja", Force: true})
	require.NoError(t, err)
	assert.Equal(t, first.TaskID, forced.TaskID)
	assert.Equal(t, model.TaskStatePending, forced.State)
	assert.Equal(t, 0, forced.TranscribedChunks)
	assert.Nil(t, forced.LastError)
	assert.False(t, f.ws.Exists(ref.TaskTranscriptChunkPath(first.TaskID, 1)))
	// The task detail document survives the reset.
	assert.True(t, f.ws.Exists(ref.TaskPath(first.TaskID)))
}

func TestRunTaskTranscribesAllChunks(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)

	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("text"), nil).Twice()

	done, err := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCompleted, done.State)
	assert.Equal(t, 2, done.TranscribedChunks)
	assert.Equal(t, 0, done.FailedChunks)

	for i := 1; i <= 2; i++ {
		raw, err := f.ws.ReadFile(ref.TaskTranscriptChunkPath(task.TaskID, i))
		require.NoError(t, err)
		chunk, err := model.ParseTranscriptChunk(raw)
		require.NoError(t, err)
		assert.Equal(t, task.TaskID, chunk.TaskID)
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, "ja", chunk.DetectedLanguage)
	}
	f.asr.AssertNumberOfCalls(t, "Transcribe", 2)
}

func TestRunTaskPassesNilLanguageForAuto(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 1)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "auto"})
	require.NoError(t, err)
	assert.Nil(t, task.SourceLanguage)

	f.asr.On("Transcribe", mock.Anything, mock.Anything, (*string)(nil)).Return(singleSegmentResult("x"), nil).Once()

	_, err = f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	f.asr.AssertExpectations(t)
}

func TestRunTaskResumesFromExistingArtifacts(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 3)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)

	// Chunk 1 already done by an earlier, interrupted run.
	existing := &model.TranscriptChunk{
		Schema:     model.SchemaTranscriptChunk,
		TaskID:     task.TaskID,
		SessionID:  "s1",
		ChunkIndex: 1,
		Segments:   []model.TranscriptSegment{{ID: 0, Text: "done"}},
	}
	data, err := model.MarshalPretty(existing)
	require.NoError(t, err)
	require.NoError(t, f.ws.WriteFile(ref.TaskTranscriptChunkPath(task.TaskID, 1), data))

	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("x"), nil).Twice()

	done, err := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCompleted, done.State)
	assert.Equal(t, 3, done.TranscribedChunks)
	// Only the two missing chunks hit the provider.
	f.asr.AssertNumberOfCalls(t, "Transcribe", 2)
}

func TestRunTaskFailureClassification(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    string
		message string
	}{
		{"network", errors.New(errors.CodeAsrNetworkError, "dial timeout"), errors.CodeAsrNetworkError, "dial timeout"},
		{"upload", errors.New(errors.CodeAsrUploadError, "upload file failed: http 500"), errors.CodeAsrUploadError, "upload file failed: http 500"},
		{"parse", errors.New(errors.CodeAsrParseError, "invalid poll response"), errors.CodeAsrParseError, "invalid poll response"},
		{"timeout", errors.New(errors.CodeAsrTaskTimeout, "dashscope task timeout: t"), errors.CodeAsrTaskTimeout, "dashscope task timeout: t"},
		{"remote", errors.NewRemote(errors.CodeAsrRemoteError, "Throttling", "rate limited"), errors.CodeAsrRemoteError, "remote_code=Throttling: rate limited"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newManagerFixture(t, allowGate{})
			ref := f.writeSession(t, "s1", model.SessionStateStopped, 1)

			task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
			require.NoError(t, err)

			f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(nil, tc.err).Once()

			failed, runErr := f.manager.RunTask(context.Background(), ref, task.TaskID)
			require.Error(t, runErr)
			require.NotNil(t, failed)
			assert.Equal(t, model.TaskStateFailed, failed.State)
			assert.Equal(t, 1, failed.FailedChunks)
			require.NotNil(t, failed.LastError)
			assert.Equal(t, tc.code, failed.LastError.Code)
			require.NotNil(t, failed.LastError.Message)
			assert.Equal(t, tc.message, *failed.LastError.Message)
		})
	}
}

func TestRunTaskMissingAudioFile(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 1)
	require.NoError(t, f.ws.Remove(ref.AudioChunkPath(1)))

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)

	failed, runErr := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.Error(t, runErr)
	assert.Equal(t, model.TaskStateFailed, failed.State)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, errors.CodeSessionNoChunks, failed.LastError.Code)
	f.asr.AssertNotCalled(t, "Transcribe")
}

func TestRunTaskStopsAfterCancel(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)

	_, err = f.manager.Cancel(task.TaskID)
	require.NoError(t, err)

	got, err := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCancelled, got.State)
	f.asr.AssertNotCalled(t, "Transcribe")
}

func TestCancelUnknownTask(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "s1", model.SessionStateStopped, 1)

	_, err := f.manager.Cancel("tx_nope")
	require.Error(t, err)
	assert.Equal(t, errors.CodeTaskNotFound, errors.Code(err, ""))
}

func TestFindTaskByIDAcrossSessions(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "s1", model.SessionStateStopped, 1)
	f.writeSession(t, "s2", model.SessionStateStopped, 1)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s2", SourceLanguage: "ja"})
	require.NoError(t, err)

	ref, found, err := f.manager.FindTaskByID(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "s2", ref.SessionID)
	assert.Equal(t, task.TaskID, found.TaskID)
}

func TestRetryRewindsFailedTask(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 1)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)

	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.CodeAsrNetworkError, "down")).Once()
	_, runErr := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.Error(t, runErr)

	retried, err := f.manager.Retry(ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatePending, retried.State)
	assert.Nil(t, retried.LastError)

	// The next run finishes the remaining chunk.
	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("x"), nil).Once()
	done, err := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCompleted, done.State)
}

func TestListCreatesEmptyIndex(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "s1", model.SessionStateStopped, 1)

	idx, err := f.manager.List("s1", "")
	require.NoError(t, err)
	assert.Empty(t, idx.Tasks)
	assert.Equal(t, model.SchemaTasksIndex, idx.Schema)
}

func TestStartByExplicitDir(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "s1", model.SessionStateStopped, 1)

	task, err := f.manager.Start(context.Background(), StartRequest{Dir: "radio_recordings/s1", SourceLanguage: "ja"})
	require.NoError(t, err)
	assert.Equal(t, "s1", task.SessionID)
}

func TestRunTaskTranslatesEveryChunk(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "auto", TargetLanguage: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "fr", task.TargetLanguage)

	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(twoSegmentResult("one", "two"), nil).Twice()

	done, err := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCompleted, done.State)
	assert.Equal(t, 2, done.TranscribedChunks)
	f.asr.AssertNumberOfCalls(t, "Transcribe", 2)
	assert.Equal(t, 2, f.translator.calls)

	for i := 1; i <= 2; i++ {
		assert.True(t, f.ws.Exists(ref.TaskTranscriptChunkPath(task.TaskID, i)))
		raw, err := f.ws.ReadFile(ref.TranslationChunkPath(i))
		require.NoError(t, err)
		doc, err := model.ParseTranslationChunk(raw)
		require.NoError(t, err)
		assert.Equal(t, "fr", doc.TargetLanguage)
		require.Len(t, doc.Segments, 2)
		for _, s := range doc.Segments {
			assert.Equal(t, "T:"+s.SourceText, s.TranslatedText)
		}
	}
}

func TestRunTaskTranslationContextFromEarlierChunks(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja", TargetLanguage: "fr"})
	require.NoError(t, err)

	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("speech"), nil).Twice()

	_, err = f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)

	require.Len(t, f.translator.priors, 2)
	assert.Empty(t, f.translator.priors[0])
	require.Len(t, f.translator.priors[1], 1)
	assert.Equal(t, "T:speech", f.translator.priors[1][0].TranslatedText)
}

func TestRunTaskTranslationResume(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja", TargetLanguage: "fr"})
	require.NoError(t, err)

	// Chunk 1 finished on an earlier, interrupted run.
	transcript := &model.TranscriptChunk{
		Schema:     model.SchemaTranscriptChunk,
		TaskID:     task.TaskID,
		SessionID:  "s1",
		ChunkIndex: 1,
		Segments:   []model.TranscriptSegment{{ID: 0, Text: "done"}},
	}
	data, err := model.MarshalPretty(transcript)
	require.NoError(t, err)
	require.NoError(t, f.ws.WriteFile(ref.TaskTranscriptChunkPath(task.TaskID, 1), data))
	translated := &model.TranslationChunk{
		Schema:         model.SchemaTranslationChunk,
		SessionID:      "s1",
		ChunkIndex:     1,
		SourceLanguage: "ja",
		TargetLanguage: "fr",
		Segments:       []model.TranslatedSegment{{ID: 0, SourceText: "done", TranslatedText: "T:done"}},
	}
	data, err = model.MarshalPretty(translated)
	require.NoError(t, err)
	require.NoError(t, f.ws.WriteFile(ref.TranslationChunkPath(1), data))

	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("next"), nil).Once()

	done, err := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCompleted, done.State)
	assert.Equal(t, 2, done.TranscribedChunks)
	// Only the missing chunk hits either provider.
	f.asr.AssertNumberOfCalls(t, "Transcribe", 1)
	assert.Equal(t, 1, f.translator.calls)
	// Chunk 1's reloaded translation still feeds chunk 2's context.
	require.Len(t, f.translator.priors, 1)
	require.Len(t, f.translator.priors[0], 1)
	assert.Equal(t, "T:done", f.translator.priors[0][0].TranslatedText)
}

func TestRunTaskTranslationFailureClassified(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 2)

	task, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja", TargetLanguage: "fr"})
	require.NoError(t, err)

	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("speech"), nil).Once()
	f.translator.failOn = 1
	f.translator.err = errors.NewRemote(errors.CodeLlmRemoteError, "InvalidModel", "bad model")

	failed, runErr := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.Error(t, runErr)
	assert.Equal(t, model.TaskStateFailed, failed.State)
	assert.Equal(t, 1, failed.FailedChunks)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, errors.CodeLlmRemoteError, failed.LastError.Code)
	require.NotNil(t, failed.LastError.Message)
	assert.Equal(t, "remote_code=InvalidModel: bad model", *failed.LastError.Message)

	// The chunk's transcript survives the translation failure, so the
	// next run retries only the translation.
	assert.True(t, f.ws.Exists(ref.TaskTranscriptChunkPath(task.TaskID, 1)))
	assert.False(t, f.ws.Exists(ref.TranslationChunkPath(1)))

	f.translator.failOn = 0
	f.asr.On("Transcribe", mock.Anything, mock.Anything, mock.Anything).Return(singleSegmentResult("speech"), nil).Once()
	done, err := f.manager.RunTask(context.Background(), ref, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStateCompleted, done.State)
	f.asr.AssertNumberOfCalls(t, "Transcribe", 2)
}

func TestStartTranslationCredentialPreflight(t *testing.T) {
	f := newManagerFixture(t, denyTranslationGate{})
	ref := f.writeSession(t, "s1", model.SessionStateStopped, 1)

	_, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja", TargetLanguage: "fr"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgs, errors.Code(err, ""))
	assert.False(t, f.ws.Exists(ref.TranscriptsDir()))

	// Transcript-only tasks do not need translation credentials.
	_, err = f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)
}

func TestStartDedupKeyedOnTargetLanguage(t *testing.T) {
	f := newManagerFixture(t, allowGate{})
	f.writeSession(t, "s1", model.SessionStateStopped, 1)

	first, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja", TargetLanguage: "fr"})
	require.NoError(t, err)

	_, err = f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja", TargetLanguage: "fr"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTaskAlreadyExists, errors.Code(err, ""))

	// A transcript-only task is a different request shape.
	other, err := f.manager.Start(context.Background(), StartRequest{SessionID: "s1", SourceLanguage: "ja"})
	require.NoError(t, err)
	assert.NotEqual(t, first.TaskID, other.TaskID)
}
