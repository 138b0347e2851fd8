// Package assistant is the conversational money coach: it answers typed or
// spoken questions with a generative model and optionally speaks the reply.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/centsify/centsify/internal/ai"
)

const (
	defaultMaxHistory = 12
	maxReplyTokens    = 1024

	// FallbackReply is sent when the model cannot answer.
	FallbackReply = "Sorry, I can't answer right now. Please try again in a moment."
	// BudgetReply is sent once a learner has used up their token budget.
	BudgetReply = "You've reached today's limit for coach questions. Keep practising with the quizzes!"
)

var ErrEmptyMessage = errors.New("message is empty")

const systemPrompt = `You are Centsify Coach, a friendly personal-finance tutor for beginners.

Explain budgeting, saving, credit, interest, debt, taxes and investing in plain language.
Use small worked examples with round numbers. Keep answers short enough to read aloud.
Never give individualised investment, legal or tax advice; suggest a professional for that.`

// Completer produces completions. *ai.Router satisfies it.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// Reply is the assistant's answer to one question.
type Reply struct {
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"reply"`
	Audio      []byte `json:"audio_base64,omitempty"`
}

// Config holds the assistant's collaborators. Transcriber and Synthesizer
// are optional.
type Config struct {
	AI          Completer
	Budget      *ai.Budget
	Transcriber Transcriber
	Synthesizer Synthesizer
	MaxHistory  int
}

// Assistant keeps a short per-learner history and answers questions.
type Assistant struct {
	ai          Completer
	budget      *ai.Budget
	transcriber Transcriber
	synthesizer Synthesizer
	maxHistory  int

	mu      sync.Mutex
	history map[string][]ai.Message
}

func New(cfg Config) *Assistant {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.Budget == nil {
		cfg.Budget = ai.NewBudget(0)
	}
	return &Assistant{
		ai:          cfg.AI,
		budget:      cfg.Budget,
		transcriber: cfg.Transcriber,
		synthesizer: cfg.Synthesizer,
		maxHistory:  cfg.MaxHistory,
		history:     make(map[string][]ai.Message),
	}
}

// Ask answers a typed question. Model failures produce FallbackReply rather
// than an error.
func (a *Assistant) Ask(ctx context.Context, userID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	reply := Reply{Text: a.complete(ctx, userID, text)}
	reply.Audio = a.speak(ctx, reply.Text)
	return reply, nil
}

// AskVoice transcribes audio, answers it and speaks the answer. A failed
// transcription is returned as an error; a failed synthesis yields a reply
// without audio.
func (a *Assistant) AskVoice(ctx context.Context, userID string, audio []byte) (Reply, error) {
	if a.transcriber == nil {
		return Reply{}, fmt.Errorf("%w: speech input is not configured", ErrTranscription)
	}
	transcript, err := a.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return Reply{}, err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Reply{}, fmt.Errorf("%w: no speech detected", ErrTranscription)
	}

	reply := Reply{Transcript: transcript, Text: a.complete(ctx, userID, transcript)}
	reply.Audio = a.speak(ctx, reply.Text)
	return reply, nil
}

// History returns a copy of the learner's recent messages.
func (a *Assistant) History(userID string) []ai.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ai.Message(nil), a.history[userID]...)
}

func (a *Assistant) complete(ctx context.Context, userID, text string) string {
	if a.ai == nil {
		return FallbackReply
	}
	if !a.budget.Allow(userID) {
		slog.Info("assistant budget exhausted", "user_id", userID)
		return BudgetReply
	}

	messages := append(a.History(userID), ai.Message{Role: "user", Content: text})

	resp, err := a.ai.Complete(ctx, ai.CompletionRequest{
		System:    systemPrompt,
		Messages:  messages,
		MaxTokens: maxReplyTokens,
	})
	if err != nil {
		slog.Error("AI completion failed", "user_id", userID, "error", err)
		return FallbackReply
	}

	if err := a.budget.Record(userID, resp.TotalTokens()); err != nil {
		slog.Warn("recording token usage", "error", err)
	}
	a.remember(userID, ai.Message{Role: "user", Content: text}, ai.Message{Role: "assistant", Content: resp.Content})
	return resp.Content
}

func (a *Assistant) speak(ctx context.Context, text string) []byte {
	if a.synthesizer == nil {
		return nil
	}
	audio, err := a.synthesizer.Synthesize(ctx, text)
	if err != nil {
		slog.Warn("speech synthesis failed, replying without audio", "error", err)
		return nil
	}
	return audio
}

func (a *Assistant) remember(userID string, msgs ...ai.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[userID], msgs...)
	if len(h) > a.maxHistory {
		h = h[len(h)-a.maxHistory:]
	}
	a.history[userID] = h
}
