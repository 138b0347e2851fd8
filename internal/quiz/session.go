package quiz

import (
	"fmt"
	"sync"

	"github.com/centsify/centsify/internal/curriculum"
)

const noSelection = -1

// State is a snapshot of a session for the presentation layer. Option
// correctness is only revealed once an answer is selected.
type State struct {
	SessionID     string   `json:"session_id"`
	TopicID       int      `json:"topic_id"`
	TopicName     string   `json:"topic_name"`
	Index         int      `json:"question_index"`
	Total         int      `json:"total_questions"`
	Prompt        string   `json:"prompt,omitempty"`
	Options       []string `json:"options,omitempty"`
	Score         int      `json:"score"`
	Selected      *int     `json:"selected,omitempty"`
	Correct       *bool    `json:"correct,omitempty"`
	CorrectOption *int     `json:"correct_option,omitempty"`
	Completed     bool     `json:"completed"`
}

// Session is one quiz attempt. Answer feedback is shown for the engine's
// feedback delay before the session advances on a scheduler callback, so
// all state is guarded by mu.
type Session struct {
	ID    string
	Topic curriculum.Topic

	engine     *Engine
	questions  []curriculum.Question
	userID     string
	observers  []func(State)
	onComplete []func(Result)

	mu        sync.Mutex
	current   int
	score     int
	completed bool
	selected  int
	correct   bool
	pending   Timer
	gen       uint64 // bumped on Reset/Close so stale callbacks are ignored
	closed    bool
}

// Answer selects option for the current question. The selection is locked
// until the session advances; a second answer, an answer after completion
// or an out-of-range option returns ErrInvalidSelection and changes nothing.
func (s *Session) Answer(option int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.completed {
		s.mu.Unlock()
		return fmt.Errorf("%w: quiz already completed", ErrInvalidSelection)
	}
	if s.selected != noSelection {
		s.mu.Unlock()
		return fmt.Errorf("%w: an answer is already selected", ErrInvalidSelection)
	}
	q := s.questions[s.current]
	if option < 0 || option >= len(q.Options) {
		s.mu.Unlock()
		return fmt.Errorf("%w: option %d out of range [0,%d)", ErrInvalidSelection, option, len(q.Options))
	}

	s.selected = option
	s.correct = q.Options[option].Correct
	if s.correct {
		s.score++
	}
	gen := s.gen
	s.pending = s.engine.scheduler.AfterFunc(s.engine.delay, func() { s.advance(gen) })

	index, correct := s.current, s.correct
	state := s.stateLocked()
	s.mu.Unlock()

	s.engine.logEvent(s, EventAnswerSelected, map[string]any{
		"question": index,
		"option":   option,
		"correct":  correct,
	})
	s.notify(state)
	return nil
}

func (s *Session) advance(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.pending = nil

	var result *Result
	if s.current+1 < len(s.questions) {
		s.current++
		s.selected = noSelection
		s.correct = false
	} else {
		s.completed = true
		result = &Result{TopicID: s.Topic.ID, Score: s.score, Total: len(s.questions)}
	}
	state := s.stateLocked()
	s.mu.Unlock()

	if result != nil {
		s.engine.logEvent(s, EventQuizCompleted, map[string]any{
			"score": result.Score,
			"total": result.Total,
		})
		for _, fn := range s.onComplete {
			fn(*result)
		}
	}
	s.notify(state)
}

// Reset returns the session to its first question with a zero score, for a
// retry. A pending advance is cancelled.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.cancelPendingLocked()
	s.current = 0
	s.score = 0
	s.completed = false
	s.selected = noSelection
	s.correct = false
	state := s.stateLocked()
	s.mu.Unlock()

	s.engine.logEvent(s, EventQuizReset, nil)
	s.notify(state)
	return nil
}

// Close disposes the session and cancels a pending advance. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cancelPendingLocked()
	s.closed = true
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Pending reports whether an advance is scheduled.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Session) cancelPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.gen++
}

func (s *Session) stateLocked() State {
	st := State{
		SessionID: s.ID,
		TopicID:   s.Topic.ID,
		TopicName: s.Topic.Name,
		Index:     s.current,
		Total:     len(s.questions),
		Score:     s.score,
		Completed: s.completed,
	}

	if !s.completed {
		q := s.questions[s.current]
		st.Prompt = q.Prompt
		st.Options = make([]string, len(q.Options))
		for i, o := range q.Options {
			st.Options[i] = o.Text
		}
	}

	if s.selected != noSelection {
		selected, correct := s.selected, s.correct
		answer := s.questions[s.current].CorrectIndex()
		st.Selected = &selected
		st.Correct = &correct
		st.CorrectOption = &answer
	}
	return st
}

func (s *Session) notify(state State) {
	for _, fn := range s.observers {
		fn(state)
	}
}
