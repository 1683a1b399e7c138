// Package genai is a lightweight facade over the Gemini REST API. It covers
// the two endpoints the enhancement pipeline needs: the resumable Files
// upload and generateContent with image output.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey        string
	BaseURL       string
	UploadBaseURL string
	Model         string
	FallbackModel string
	HTTPClient    *http.Client
	Logger        *zerolog.Logger
}

// Client provides a thin facade over Gemini so the orchestrator can focus on
// sequencing rather than wire formats.
type Client struct {
	apiKey        string
	baseURL       string
	uploadBaseURL string
	model         string
	fallbackModel string
	httpClient    *http.Client
	logger        zerolog.Logger
}

// UploadedFile identifies a payload registered with the Files API.
type UploadedFile struct {
	Name string
	URI  string
	MIME string
}

// InlineImage carries raw image bytes for an inline-data request part.
type InlineImage struct {
	MIME string
	Data []byte
}

// EditRequest asks a model to produce a transformed variant of one source
// image. Exactly one of Inline or File should be set.
type EditRequest struct {
	Model       string
	Instruction string
	Inline      *InlineImage
	File        *UploadedFile
}

// ImagePart is one inline image returned by a generation call.
type ImagePart struct {
	MIME string
	Data []byte
}

// EditResult is the decoded outcome of one generation call: all returned
// image parts plus any diagnostic text the service sent alongside them.
type EditResult struct {
	Images []ImagePart
	Text   string
}

// APIError is a non-2xx answer from the Gemini API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying: rate limiting or
// a server-side error.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

type geminiFileResponse struct {
	File struct {
		Name     string `json:"name,omitempty"`
		URI      string `json:"uri,omitempty"`
		MimeType string `json:"mimeType,omitempty"`
	} `json:"file"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a timeout is created.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	uploadBaseURL := strings.TrimRight(opts.UploadBaseURL, "/")
	if uploadBaseURL == "" {
		uploadBaseURL = "https://generativelanguage.googleapis.com/upload/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image-preview"
	}
	fallback := opts.FallbackModel
	if fallback == "" {
		fallback = "gemini-2.0-flash-preview-image-generation"
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{
		apiKey:        strings.TrimSpace(opts.APIKey),
		baseURL:       baseURL,
		uploadBaseURL: uploadBaseURL,
		model:         model,
		fallbackModel: fallback,
		httpClient:    client,
		logger:        logger,
	}, nil
}

// Model returns the configured primary model identifier.
func (c *Client) Model() string { return c.model }

// FallbackModel returns the configured secondary model identifier.
func (c *Client) FallbackModel() string { return c.fallbackModel }

// UploadFile registers raw bytes with the Files API using the two-phase
// resumable protocol: a start call declaring length and media type, then a
// finalize transfer of the payload to the session URL it returns.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType, displayName string) (*UploadedFile, error) {
	startBody, err := json.Marshal(map[string]any{
		"file": map[string]any{"display_name": displayName},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upload start: %w", err)
	}

	startURL := c.uploadBaseURL + "/files?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, startURL, bytes.NewReader(startBody))
	if err != nil {
		return nil, fmt.Errorf("create upload start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("start upload session: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "upload session rejected"}
	}

	sessionURL := resp.Header.Get("X-Goog-Upload-URL")
	if sessionURL == "" {
		return nil, fmt.Errorf("upload session missing X-Goog-Upload-URL")
	}

	finReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sessionURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create upload finalize request: %w", err)
	}
	finReq.Header.Set("Content-Type", mimeType)
	finReq.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	finReq.Header.Set("X-Goog-Upload-Offset", "0")
	finReq.ContentLength = int64(len(data))

	finResp, err := c.httpClient.Do(finReq)
	if err != nil {
		return nil, fmt.Errorf("finalize upload: %w", err)
	}
	defer finResp.Body.Close()
	if finResp.StatusCode >= http.StatusBadRequest {
		return nil, c.decodeError(finResp)
	}

	var fileResp geminiFileResponse
	if err := json.NewDecoder(finResp.Body).Decode(&fileResp); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if fileResp.File.URI == "" {
		return nil, fmt.Errorf("upload response missing file uri")
	}

	c.logger.Debug().
		Str("file", fileResp.File.Name).
		Int("bytes", len(data)).
		Msg("genai: upload finalized")

	return &UploadedFile{
		Name: fileResp.File.Name,
		URI:  fileResp.File.URI,
		MIME: firstNonEmpty(fileResp.File.MimeType, mimeType),
	}, nil
}

// GenerateEdit sends the instruction plus one source image (inline bytes or
// a registered file reference) to the requested model and returns every
// inline image part of the answer.
func (c *Client) GenerateEdit(ctx context.Context, req EditRequest) (*EditResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	parts := []geminiPart{{Text: req.Instruction}}
	switch {
	case req.Inline != nil:
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.Inline.MIME,
			Data:     base64.StdEncoding.EncodeToString(req.Inline.Data),
		}})
	case req.File != nil:
		parts = append(parts, geminiPart{FileData: &geminiFileData{
			MimeType: req.File.MIME,
			FileURI:  req.File.URI,
		}})
	default:
		return nil, fmt.Errorf("edit request needs an inline payload or a file reference")
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}

	result := &EditResult{}
	var texts []string
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("decode inline data: %w", err)
				}
				result.Images = append(result.Images, ImagePart{
					MIME: firstNonEmpty(part.InlineData.MimeType, "image/png"),
					Data: data,
				})
				continue
			}
			if txt := strings.TrimSpace(part.Text); txt != "" {
				texts = append(texts, txt)
			}
		}
	}
	result.Text = strings.Join(texts, " ")

	c.logger.Debug().
		Str("model", model).
		Int("images", len(result.Images)).
		Msg("genai: generation response decoded")

	return result, nil
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", c.apiKey)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var apiErr geminiErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
