package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lemonhall/radioscribe/internal/errors"
	"github.com/lemonhall/radioscribe/internal/model"
)

const (
	defaultBaseURL       = "https://api.openai.com/v1"
	defaultMaxBatchChars = 8000

	// Trailing translated segments carried between batches as context.
	contextWindow = 24
)

// openAIClient talks to any OpenAI-compatible chat completions endpoint.
type openAIClient struct {
	baseURL       string
	apiKey        string
	model         string
	maxBatchChars int
	httpClient    *http.Client
}

// NewOpenAIClient creates a translation client against an
// OpenAI-compatible API.
func NewOpenAIClient(baseURL, apiKey, modelName string) Client {
	return NewOpenAIClientWithDependencies(baseURL, apiKey, modelName, &http.Client{Timeout: 5 * time.Minute}, defaultMaxBatchChars)
}

// NewOpenAIClientWithDependencies creates a translation client with
// explicit dependencies for testing.
func NewOpenAIClientWithDependencies(baseURL, apiKey, modelName string, httpClient *http.Client, maxBatchChars int) Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if maxBatchChars <= 0 {
		maxBatchChars = defaultMaxBatchChars
	}
	return &openAIClient{
		baseURL:       base,
		apiKey:        apiKey,
		model:         strings.TrimSpace(modelName),
		maxBatchChars: maxBatchChars,
		httpClient:    httpClient,
	}
}

func (c *openAIClient) TranslateBatch(
	ctx context.Context,
	segments []model.TranscriptSegment,
	prior []model.TranslatedSegment,
	sourceLanguage string,
	targetLanguage string,
) ([]model.TranslatedSegment, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	src := strings.TrimSpace(sourceLanguage)
	if src == "" {
		src = "auto"
	}
	tgt := strings.TrimSpace(targetLanguage)
	if tgt == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing target language")
	}
	if strings.EqualFold(src, tgt) {
		return nil, errors.New(errors.CodeInvalidArgs, "source and target language must differ")
	}
	if c.model == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing model name")
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing api key")
	}

	out := make([]model.TranslatedSegment, 0, len(segments))
	window := prior
	for _, batch := range SplitByApproxChars(segments, c.maxBatchChars) {
		translated, err := c.translateOneBatch(ctx, batch, window, src, tgt)
		if err != nil {
			return nil, err
		}
		out = append(out, translated...)
		window = model.AppendContext(window, translated, contextWindow)
	}
	return out, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) translateOneBatch(
	ctx context.Context,
	segments []model.TranscriptSegment,
	prior []model.TranslatedSegment,
	sourceLanguage string,
	targetLanguage string,
) ([]model.TranslatedSegment, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: buildMessages(segments, prior, sourceLanguage, targetLanguage),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLlmParseError, "failed to encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLlmNetworkError, "failed to build chat request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLlmNetworkError, "llm request network error")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeLlmNetworkError, "failed to read llm response")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewRemote(errors.CodeLlmQuotaExceeded, strconv.Itoa(resp.StatusCode), "llm rate limited")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewRemote(errors.CodeLlmRemoteError, strconv.Itoa(resp.StatusCode), "llm request failed: http "+strconv.Itoa(resp.StatusCode))
	}

	var doc chatResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeLlmParseError, "invalid llm response")
	}
	if len(doc.Choices) == 0 {
		return nil, errors.New(errors.CodeLlmParseError, "llm returned no choices")
	}
	text := strings.TrimSpace(doc.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New(errors.CodeLlmParseError, "llm returned empty content")
	}

	byID, err := parseTranslatedItems(text)
	if err != nil {
		return nil, err
	}

	out := make([]model.TranslatedSegment, 0, len(segments))
	for _, s := range segments {
		tt, ok := byID[s.ID]
		if !ok {
			return nil, errors.Newf(errors.CodeLlmParseError, "missing translatedText for id=%d", s.ID)
		}
		out = append(out, model.TranslatedSegment{
			ID:             s.ID,
			StartMs:        s.StartMs,
			EndMs:          s.EndMs,
			SourceText:     s.Text,
			TranslatedText: tt,
			Emotion:        s.Emotion,
		})
	}
	return out, nil
}

// parseTranslatedItems extracts the id to translatedText mapping from
// the model's reply, tolerating code fences and prose around the array.
func parseTranslatedItems(text string) (map[int]string, error) {
	arr, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]string, len(arr))
	for _, raw := range arr {
		var item struct {
			ID             *int   `json:"id"`
			TranslatedText string `json:"translatedText"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		tt := strings.TrimSpace(item.TranslatedText)
		if item.ID == nil || tt == "" {
			continue
		}
		byID[*item.ID] = tt
	}
	if len(byID) == 0 {
		return nil, errors.New(errors.CodeLlmParseError, "llm returned no translated items")
	}
	return byID, nil
}

func extractJSONArray(text string) ([]json.RawMessage, error) {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		if nl := strings.IndexByte(t, '\n'); nl > 0 {
			if last := strings.LastIndex(t, "```"); last > nl {
				t = strings.TrimSpace(t[nl+1 : last])
			}
		}
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(t), &arr); err == nil {
		return arr, nil
	}

	start := strings.IndexByte(t, '[')
	end := strings.LastIndexByte(t, ']')
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(t[start:end+1]), &arr); err == nil {
			return arr, nil
		}
	}
	return nil, errors.New(errors.CodeLlmParseError, "llm reply is not a JSON array")
}
