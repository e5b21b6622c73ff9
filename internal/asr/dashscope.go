package asr

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
	defaultPollDelay   = 3 * time.Second
	defaultPollTimeout = 30 * time.Minute
)

// dashScopeClient drives the DashScope async transcription API: upload
// the file to temporary OSS storage, submit an async task, then poll
// until the task settles. Some deployments inline the result in the
// poll response, others hand back a transcription_url to download.
type dashScopeClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	uploader   Uploader
	pollDelay  time.Duration
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// NewDashScopeClient creates an ASR client against the DashScope API.
func NewDashScopeClient(baseURL, apiKey, modelName string) Client {
	httpClient := &http.Client{Timeout: 5 * time.Minute}
	return NewDashScopeClientWithDependencies(
		baseURL, apiKey, modelName,
		httpClient,
		NewDashScopeUploader(baseURL, apiKey, httpClient),
		defaultPollDelay,
		defaultPollTimeout,
	)
}

// NewDashScopeClientWithDependencies creates an ASR client with explicit
// dependencies for testing.
func NewDashScopeClientWithDependencies(
	baseURL, apiKey, modelName string,
	httpClient *http.Client,
	uploader Uploader,
	pollDelay time.Duration,
	timeout time.Duration,
) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &dashScopeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      strings.TrimSpace(modelName),
		httpClient: httpClient,
		uploader:   uploader,
		pollDelay:  pollDelay,
		timeout:    timeout,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *dashScopeClient) Transcribe(ctx context.Context, audioPath string, language *string) (*Result, error) {
	if c.model == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing model name")
	}
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, errors.New(errors.CodeInvalidArgs, "missing api key")
	}

	fileURL, err := c.uploader.Upload(ctx, c.model, audioPath)
	if err != nil {
		return nil, err
	}

	taskID, err := c.submitTask(ctx, fileURL, model.NormalizeSourceLanguage(language))
	if err != nil {
		return nil, err
	}
	return c.pollResult(ctx, taskID)
}

type submitRequest struct {
	Model      string           `json:"model"`
	Input      submitInput      `json:"input"`
	Parameters submitParameters `json:"parameters"`
}

type submitInput struct {
	FileURL string `json:"file_url"`
}

type submitParameters struct {
	ChannelID   []int   `json:"channel_id"`
	EnableITN   bool    `json:"enable_itn"`
	EnableWords bool    `json:"enable_words"`
	Language    *string `json:"language,omitempty"`
}

func (c *dashScopeClient) submitTask(ctx context.Context, fileURL string, language *string) (string, error) {
	payload, err := json.Marshal(submitRequest{
		Model: c.model,
		Input: submitInput{FileURL: fileURL},
		Parameters: submitParameters{
			ChannelID:   []int{0},
			EnableITN:   false,
			EnableWords: true,
			Language:    language,
		},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeAsrParseError, "failed to encode submit request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services/audio/asr/transcription", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeAsrNetworkError, "failed to build submit request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DashScope-Async", "enable")
	req.Header.Set("X-DashScope-OssResourceResolve", "enable")

	body, status, err := c.do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeAsrNetworkError, "submit network error")
	}
	if status < 200 || status > 299 {
		return "", errors.NewRemote(errors.CodeAsrRemoteError, httpCode(status), "submit failed: http "+httpCode(status))
	}

	var doc struct {
		Output struct {
			TaskID string `json:"task_id"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", errors.Wrap(err, errors.CodeAsrParseError, "invalid submit response")
	}
	taskID := strings.TrimSpace(doc.Output.TaskID)
	if taskID == "" {
		return "", errors.New(errors.CodeAsrParseError, "missing output.task_id in submit response")
	}
	return taskID, nil
}

func (c *dashScopeClient) pollResult(ctx context.Context, taskID string) (*Result, error) {
	deadline := c.now().Add(c.timeout)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+taskID, nil)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeAsrNetworkError, "failed to build poll request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-DashScope-Async", "enable")

		body, status, err := c.do(req)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeAsrNetworkError, "poll network error")
		}
		if status < 200 || status > 299 {
			return nil, errors.NewRemote(errors.CodeAsrRemoteError, httpCode(status), "poll failed: http "+httpCode(status))
		}

		var doc struct {
			Output struct {
				TaskStatus string          `json:"task_status"`
				Code       string          `json:"code"`
				Message    string          `json:"message"`
				Result     json.RawMessage `json:"result"`
			} `json:"output"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, errors.Wrap(err, errors.CodeAsrParseError, "invalid poll response")
		}

		switch strings.TrimSpace(doc.Output.TaskStatus) {
		case "SUCCEEDED":
			result, err := rawObject(doc.Output.Result, "output.result")
			if err != nil {
				return nil, err
			}
			if url := stringField(result, "transcription_url"); url != "" {
				result, err = c.downloadTranscription(ctx, url)
				if err != nil {
					return nil, err
				}
			}
			return decodeResult(result)
		case "FAILED":
			code := strings.TrimSpace(doc.Output.Code)
			if code == "" {
				code = "UNKNOWN"
			}
			message := strings.TrimSpace(doc.Output.Message)
			if message == "" {
				message = "dashscope task failed"
			}
			return nil, errors.NewRemote(errors.CodeAsrRemoteError, code, message)
		case "PENDING", "RUNNING":
			if c.now().After(deadline) {
				return nil, errors.Newf(errors.CodeAsrTaskTimeout, "dashscope task timeout: %s", taskID)
			}
			if err := c.sleep(ctx, c.pollDelay); err != nil {
				return nil, errors.Wrap(err, errors.CodeAsrNetworkError, "poll cancelled")
			}
		default:
			return nil, errors.NewRemote(errors.CodeAsrRemoteError, "UNKNOWN", "unknown task status: "+doc.Output.TaskStatus)
		}
	}
}

func (c *dashScopeClient) downloadTranscription(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAsrNetworkError, "failed to build transcription download request")
	}
	body, status, err := c.do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAsrNetworkError, "transcription download network error")
	}
	if status < 200 || status > 299 {
		return nil, errors.NewRemote(errors.CodeAsrRemoteError, httpCode(status), "download transcription file failed: http "+httpCode(status))
	}
	return rawObject(body, "transcription file")
}

func (c *dashScopeClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func rawObject(raw []byte, what string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, errors.Newf(errors.CodeAsrParseError, "missing %s", what)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errors.Wrap(err, errors.CodeAsrParseError, "invalid "+what+" (expected object)")
	}
	return obj, nil
}

func httpCode(status int) string {
	return strconv.Itoa(status)
}
