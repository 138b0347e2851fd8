package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultVoiceRSSBaseURL = "https://api.voicerss.org"

// ErrSynthesis is returned when text could not be turned into speech.
var ErrSynthesis = errors.New("speech synthesis failed")

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// VoiceRSS produces MP3 speech.
type VoiceRSS struct {
	apiKey   string
	language string
	baseURL  string
	client   *http.Client
}

type VoiceRSSOption func(*VoiceRSS)

// WithVoiceRSSBaseURL sets the base URL (for testing).
func WithVoiceRSSBaseURL(url string) VoiceRSSOption {
	return func(v *VoiceRSS) {
		v.baseURL = url
	}
}

// NewVoiceRSS creates a client speaking language, e.g. "en-us".
func NewVoiceRSS(apiKey, language string, opts ...VoiceRSSOption) *VoiceRSS {
	if language == "" {
		language = "en-us"
	}
	v := &VoiceRSS{
		apiKey:   apiKey,
		language: language,
		baseURL:  defaultVoiceRSSBaseURL,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *VoiceRSS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("key", v.apiKey)
	q.Set("hl", v.language)
	q.Set("src", text)
	q.Set("c", "MP3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrSynthesis, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSynthesis, resp.StatusCode)
	}
	// VoiceRSS reports failures as a 200 with an "ERROR: ..." text body.
	if bytes.HasPrefix(audio, []byte("ERROR")) {
		return nil, fmt.Errorf("%w: %s", ErrSynthesis, bytes.TrimSpace(audio))
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSynthesis)
	}
	return audio, nil
}
