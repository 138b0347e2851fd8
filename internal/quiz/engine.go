// Package quiz runs single quiz attempts over the question bank.
package quiz

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/centsify/centsify/internal/curriculum"
)

// DefaultFeedbackDelay is how long the answer feedback stays visible before
// the session advances.
const DefaultFeedbackDelay = time.Second

var (
	// ErrQuizUnavailable is returned by Start for topics without questions.
	ErrQuizUnavailable = errors.New("quiz unavailable")
	// ErrInvalidSelection rejects an answer that cannot be accepted now.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrSessionClosed is returned by any call on a disposed session.
	ErrSessionClosed = errors.New("quiz session closed")
)

// EngineConfig holds the engine's dependencies.
type EngineConfig struct {
	Bank          *curriculum.Bank
	FeedbackDelay time.Duration // default 1s
	Scheduler     Scheduler     // default RealScheduler
	Events        EventLogger   // default NopEventLogger
}

// Engine creates quiz sessions. It is safe for concurrent use.
type Engine struct {
	bank      *curriculum.Bank
	delay     time.Duration
	scheduler Scheduler
	events    EventLogger
}

// NewEngine creates a quiz engine.
func NewEngine(cfg EngineConfig) *Engine {
	delay := cfg.FeedbackDelay
	if delay <= 0 {
		delay = DefaultFeedbackDelay
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Engine{
		bank:      cfg.Bank,
		delay:     delay,
		scheduler: scheduler,
		events:    events,
	}
}

// Result is reported to completion handlers when a session finishes.
type Result struct {
	TopicID int
	Score   int
	Total   int
}

// StartOption configures a new session.
type StartOption func(*Session)

// WithUserID tags the session's analytics events with a learner id.
func WithUserID(id string) StartOption {
	return func(s *Session) {
		s.userID = id
	}
}

// WithObserver registers fn to receive a snapshot after every state change.
func WithObserver(fn func(State)) StartOption {
	return func(s *Session) {
		s.observers = append(s.observers, fn)
	}
}

// OnComplete registers fn to run once each time the session completes.
func OnComplete(fn func(Result)) StartOption {
	return func(s *Session) {
		s.onComplete = append(s.onComplete, fn)
	}
}

// Start opens a quiz session for topic. Topics without a question set
// return ErrQuizUnavailable and no session.
func (e *Engine) Start(topic curriculum.Topic, opts ...StartOption) (*Session, error) {
	var questions []curriculum.Question
	if e.bank != nil {
		questions, _ = e.bank.Questions(topic.Name)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: topic %d (%s) has no questions", ErrQuizUnavailable, topic.ID, topic.Name)
	}

	s := &Session{
		ID:        uuid.NewString(),
		Topic:     topic,
		engine:    e,
		questions: questions,
		selected:  noSelection,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.logEvent(s, EventQuizStarted, map[string]any{"questions": len(questions)})
	slog.Debug("quiz started", "session_id", s.ID, "topic_id", topic.ID, "user_id", s.userID)
	return s, nil
}

func (e *Engine) logEvent(s *Session, eventType string, data map[string]any) {
	err := e.events.LogEvent(Event{
		SessionID: s.ID,
		UserID:    s.userID,
		TopicID:   s.Topic.ID,
		Type:      eventType,
		Data:      data,
	})
	if err != nil {
		slog.Warn("failed to log quiz event", "type", eventType, "error", err)
	}
}
