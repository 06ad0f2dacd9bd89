package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// apiError is a non-2xx answer from the server.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

type uploadResponse struct {
	Message    string `json:"message"`
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	StoredName string `json:"stored_name"`
	Size       int64  `json:"size"`
}

type fileInfoResponse struct {
	ID           int64  `json:"id"`
	OriginalName string `json:"original_name"`
	Mime         string `json:"mime"`
	Size         int64  `json:"size"`
}

type shareResponse struct {
	Token       string `json:"token"`
	DownloadURL string `json:"download_url"`
}

type activityResponse struct {
	Count  int `json:"count"`
	Events []struct {
		Type string `json:"type"`
	} `json:"events"`
}

// vaultClient talks to a coffre-fort server.
type vaultClient struct {
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

func newVaultClient(baseURL string, timeout time.Duration, retryMax int) *vaultClient {
	client := createRetryableClient(retryMax, 100*time.Millisecond, 2*time.Second)
	client.HTTPClient.Timeout = timeout

	return &vaultClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// createRetryableClient retries connection failures only. Every HTTP answer,
// including 5xx, is returned to the caller as is.
func createRetryableClient(retryMax int, retryWaitMin, retryWaitMax time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Logger = nil
	client.CheckRetry = retryOnConnectionError
	return client
}

func retryOnConnectionError(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the last error itself
	}
	return false, nil
}

// doRequest performs a request and returns the body of a 2xx answer.
func (c *vaultClient) doRequest(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	var payload interface{}
	if body != nil {
		payload = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

func (c *vaultClient) doJSON(ctx context.Context, method, path string, request, result interface{}) error {
	var body []byte
	contentType := ""
	if request != nil {
		encoded, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
		contentType = "application/json"
	}

	respBody, err := c.doRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *vaultClient) register(ctx context.Context, email, password string) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
}

func (c *vaultClient) login(ctx context.Context, email, password string) error {
	var result struct {
		JWT string `json:"jwt"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &result); err != nil {
		return err
	}
	if result.JWT == "" {
		return fmt.Errorf("login returned no token")
	}
	c.token = result.JWT
	return nil
}

func (c *vaultClient) upload(ctx context.Context, filename, contentType string, data []byte) (*uploadResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/files", body.Bytes(), writer.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &result, nil
}

func (c *vaultClient) info(ctx context.Context, fileID int64) (*fileInfoResponse, error) {
	var result fileInfoResponse
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/files/%d", fileID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *vaultClient) download(ctx context.Context, fileID int64) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/files/%d/download", fileID), nil, "")
}

func (c *vaultClient) share(ctx context.Context, fileID int64) (*shareResponse, error) {
	var result shareResponse
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/files/%d/shares", fileID), map[string]int64{"expires_in": 600}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *vaultClient) downloadShare(ctx context.Context, downloadURL string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, downloadURL, nil, "")
}

func (c *vaultClient) activity(ctx context.Context) (*activityResponse, error) {
	var result activityResponse
	if err := c.doJSON(ctx, http.MethodGet, "/me/activity", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *vaultClient) delete(ctx context.Context, fileID int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/files/%d", fileID), nil, nil)
}
