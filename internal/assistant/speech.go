package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAssemblyAIBaseURL = "https://api.assemblyai.com"
	defaultPollInterval      = 3 * time.Second
)

// ErrTranscription is returned when speech could not be turned into text.
var ErrTranscription = errors.New("transcription failed")

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// AssemblyAI uploads audio, requests a transcript and polls until it is
// ready.
type AssemblyAI struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
}

type AssemblyAIOption func(*AssemblyAI)

// WithAssemblyAIBaseURL sets the base URL (for testing).
func WithAssemblyAIBaseURL(url string) AssemblyAIOption {
	return func(a *AssemblyAI) {
		a.baseURL = url
	}
}

func WithAssemblyAIHTTPClient(client *http.Client) AssemblyAIOption {
	return func(a *AssemblyAI) {
		a.client = client
	}
}

// WithPollInterval sets how often transcript status is checked.
func WithPollInterval(d time.Duration) AssemblyAIOption {
	return func(a *AssemblyAI) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

func NewAssemblyAI(apiKey string, opts ...AssemblyAIOption) *AssemblyAI {
	a := &AssemblyAI{
		apiKey:       apiKey,
		baseURL:      defaultAssemblyAIBaseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type transcript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

func (a *AssemblyAI) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrTranscription)
	}

	var upload struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.do(ctx, http.MethodPost, "/v2/upload", "application/octet-stream", bytes.NewReader(audio), &upload); err != nil {
		return "", fmt.Errorf("%w: upload: %v", ErrTranscription, err)
	}

	reqBody, err := json.Marshal(map[string]string{"audio_url": upload.UploadURL})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	var tr transcript
	if err := a.do(ctx, http.MethodPost, "/v2/transcript", "application/json", bytes.NewReader(reqBody), &tr); err != nil {
		return "", fmt.Errorf("%w: request transcript: %v", ErrTranscription, err)
	}

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		switch tr.Status {
		case "completed":
			return tr.Text, nil
		case "error":
			return "", fmt.Errorf("%w: %s", ErrTranscription, tr.Error)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		if err := a.do(ctx, http.MethodGet, "/v2/transcript/"+tr.ID, "", nil, &tr); err != nil {
			return "", fmt.Errorf("%w: poll: %v", ErrTranscription, err)
		}
	}
}

func (a *AssemblyAI) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("assemblyai error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
