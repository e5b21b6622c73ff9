package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lemonhall/radioscribe/internal/errors"
)

// Uploader stages a local audio file where the ASR service can read it
// and returns the provider-resolvable URL.
type Uploader interface {
	Upload(ctx context.Context, model, filePath string) (string, error)
}

// dashScopeUploader implements the DashScope temporary-storage flow:
// fetch a signed OSS policy for the model, multipart-POST the file to
// the returned host, and hand back an oss:// URL the async ASR API
// resolves server-side.
type dashScopeUploader struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewDashScopeUploader creates an uploader against the DashScope API.
func NewDashScopeUploader(baseURL, apiKey string, httpClient *http.Client) Uploader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &dashScopeUploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type uploadPolicy struct {
	Data struct {
		UploadHost          string `json:"upload_host"`
		UploadDir           string `json:"upload_dir"`
		OssAccessKeyID      string `json:"oss_access_key_id"`
		Policy              string `json:"policy"`
		Signature           string `json:"signature"`
		XOssObjectACL       string `json:"x_oss_object_acl"`
		XOssForbidOverwrite string `json:"x_oss_forbid_overwrite"`
	} `json:"data"`
}

func (u *dashScopeUploader) Upload(ctx context.Context, model, filePath string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New(errors.CodeInvalidArgs, "missing model name")
	}
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return "", errors.Newf(errors.CodeInvalidArgs, "audio file not found: %s", filePath)
	}

	policy, err := u.fetchPolicy(ctx, model)
	if err != nil {
		return "", err
	}

	key := strings.Trim(policy.Data.UploadDir, "/") + "/" + filepath.Base(filePath)
	if err := u.postFile(ctx, policy, key, filePath); err != nil {
		return "", err
	}
	return "oss://" + key, nil
}

func (u *dashScopeUploader) fetchPolicy(ctx context.Context, model string) (*uploadPolicy, error) {
	url := fmt.Sprintf("%s/uploads?action=getPolicy&model=%s", u.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAsrUploadError, "failed to build upload policy request")
	}
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAsrNetworkError, "upload policy network error")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAsrNetworkError, "failed to read upload policy response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.CodeAsrUploadError, "upload policy failed: http %d %s", resp.StatusCode, truncate(string(body), 200))
	}

	var policy uploadPolicy
	if err := json.Unmarshal(body, &policy); err != nil {
		return nil, errors.Wrap(err, errors.CodeAsrParseError, "invalid upload policy response")
	}
	for field, v := range map[string]string{
		"upload_host":            policy.Data.UploadHost,
		"upload_dir":             policy.Data.UploadDir,
		"oss_access_key_id":      policy.Data.OssAccessKeyID,
		"policy":                 policy.Data.Policy,
		"signature":              policy.Data.Signature,
		"x_oss_object_acl":       policy.Data.XOssObjectACL,
		"x_oss_forbid_overwrite": policy.Data.XOssForbidOverwrite,
	} {
		if strings.TrimSpace(v) == "" {
			return nil, errors.Newf(errors.CodeAsrParseError, "missing policy field: %s", field)
		}
	}
	policy.Data.UploadHost = strings.TrimRight(policy.Data.UploadHost, "/")
	return &policy, nil
}

func (u *dashScopeUploader) postFile(ctx context.Context, policy *uploadPolicy, key, filePath string) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"OSSAccessKeyId", policy.Data.OssAccessKeyID},
		{"Signature", policy.Data.Signature},
		{"policy", policy.Data.Policy},
		{"x-oss-object-acl", policy.Data.XOssObjectACL},
		{"x-oss-forbid-overwrite", policy.Data.XOssForbidOverwrite},
		{"key", key},
		{"success_action_status", "200"},
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return errors.Wrap(err, errors.CodeAsrUploadError, "failed to build upload form")
		}
	}
	part, err := form.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return errors.Wrap(err, errors.CodeAsrUploadError, "failed to build upload form")
	}
	src, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, errors.CodeAsrUploadError, "failed to open audio file")
	}
	defer src.Close()
	if _, err := io.Copy(part, src); err != nil {
		return errors.Wrap(err, errors.CodeAsrUploadError, "failed to read audio file")
	}
	if err := form.Close(); err != nil {
		return errors.Wrap(err, errors.CodeAsrUploadError, "failed to finish upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, policy.Data.UploadHost, &buf)
	if err != nil {
		return errors.Wrap(err, errors.CodeAsrUploadError, "failed to build upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeAsrNetworkError, "upload network error")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return errors.Newf(errors.CodeAsrUploadError, "upload file failed: http %d %s", resp.StatusCode, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max]
	}
	return s
}
