package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/centsify/centsify/internal/auth"
	"github.com/centsify/centsify/internal/progress"
	"github.com/centsify/centsify/internal/quiz"
)

const (
	writeTimeout   = 5 * time.Second
	persistTimeout = 5 * time.Second
	outboxSize     = 16
)

// Client frame types.
const (
	frameStart  = "start"
	frameAnswer = "answer"
	frameReset  = "reset"
	frameClose  = "close"
)

// Server frame types.
const (
	frameState       = "state"
	frameUnavailable = "unavailable"
	frameLocked      = "locked"
	frameCompleted   = "completed"
	frameError       = "error"
)

type clientFrame struct {
	Type    string `json:"type"`
	TopicID int    `json:"topic_id,omitempty"`
	Option  *int   `json:"option,omitempty"`
}

type resultView struct {
	TopicID int `json:"topic_id"`
	Score   int `json:"score"`
	Total   int `json:"total"`
}

type serverFrame struct {
	Type     string        `json:"type"`
	TopicID  int           `json:"topic_id,omitempty"`
	State    *quiz.State   `json:"state,omitempty"`
	Result   *resultView   `json:"result,omitempty"`
	Progress *progressView `json:"progress,omitempty"`
	Message  string        `json:"message,omitempty"`
}

func (s *Server) handleQuizSocket(w http.ResponseWriter, r *http.Request, user *auth.User) {
	tracker, err := s.Progress.For(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.AllowedOrigins})
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", user.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	qc := &quizConn{
		server:  s,
		conn:    conn,
		userID:  user.ID,
		tracker: tracker,
		outbox:  make(chan serverFrame, outboxSize),
		done:    make(chan struct{}),
	}
	qc.run(r.Context())
	conn.Close(websocket.StatusNormalClosure, "")
}

// quizConn drives one learner's quiz over a websocket. Session callbacks
// fire on timer goroutines, so every outbound frame goes through outbox to a
// single writer.
type quizConn struct {
	server  *Server
	conn    *websocket.Conn
	userID  string
	tracker *progress.Tracker

	outbox chan serverFrame
	done   chan struct{}

	mu      sync.Mutex
	session *quiz.Session
}

func (c *quizConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()

	for {
		var frame clientFrame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("quiz socket read ended", "user_id", c.userID, "error", err)
			}
			break
		}
		c.handle(ctx, frame)
	}

	c.closeSession()
	close(c.done)
	cancel()
	wg.Wait()
}

func (c *quizConn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case frame := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, frame)
			cancel()
			if err != nil {
				slog.Debug("quiz socket write failed", "user_id", c.userID, "error", err)
				return
			}
		}
	}
}

func (c *quizConn) send(frame serverFrame) {
	select {
	case c.outbox <- frame:
	case <-c.done:
	}
}

func (c *quizConn) handle(ctx context.Context, frame clientFrame) {
	switch frame.Type {
	case frameStart:
		c.start(ctx, frame.TopicID)
	case frameAnswer:
		if frame.Option == nil {
			c.send(serverFrame{Type: frameError, Message: "option is required"})
			return
		}
		c.withSession(func(s *quiz.Session) error { return s.Answer(*frame.Option) })
	case frameReset:
		c.withSession(func(s *quiz.Session) error { return s.Reset() })
	case frameClose:
		c.closeSession()
	default:
		c.send(serverFrame{Type: frameError, Message: "unknown frame type " + frame.Type})
	}
}

// start opens a session for topicID. Locked topics are refused here and never
// reach the engine.
func (c *quizConn) start(ctx context.Context, topicID int) {
	topic, ok := c.server.Content.Catalog.Topic(topicID)
	if !ok {
		c.send(serverFrame{Type: frameError, TopicID: topicID, Message: "unknown topic"})
		return
	}
	if !c.tracker.IsUnlocked(topicID) {
		c.send(serverFrame{Type: frameLocked, TopicID: topicID})
		return
	}

	c.closeSession()

	session, err := c.server.Quiz.Start(topic,
		quiz.WithUserID(c.userID),
		quiz.OnComplete(func(res quiz.Result) { c.persist(ctx, res) }),
		quiz.WithObserver(c.observe),
	)
	if errors.Is(err, quiz.ErrQuizUnavailable) {
		c.send(serverFrame{Type: frameUnavailable, TopicID: topicID, Message: "no quiz is available for this topic yet"})
		return
	}
	if err != nil {
		slog.Error("starting quiz", "user_id", c.userID, "topic_id", topicID, "error", err)
		c.send(serverFrame{Type: frameError, TopicID: topicID, Message: "could not start quiz"})
		return
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	st := session.State()
	c.send(serverFrame{Type: frameState, State: &st})
}

// persist records a completion. It runs on the session's timer goroutine
// and outlives the request context so a completion that races a disconnect
// is still saved.
func (c *quizConn) persist(ctx context.Context, res quiz.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.tracker.OnQuizCompleted(ctx, res.TopicID); err != nil {
		slog.Error("saving quiz completion", "user_id", c.userID, "topic_id", res.TopicID, "error", err)
	}
}

func (c *quizConn) observe(st quiz.State) {
	c.send(serverFrame{Type: frameState, State: &st})
	if !st.Completed {
		return
	}
	p := progressOf(c.tracker)
	c.send(serverFrame{
		Type:     frameCompleted,
		TopicID:  st.TopicID,
		Result:   &resultView{TopicID: st.TopicID, Score: st.Score, Total: st.Total},
		Progress: &p,
	})
}

func (c *quizConn) withSession(fn func(*quiz.Session) error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		c.send(serverFrame{Type: frameError, Message: "no quiz in progress"})
		return
	}
	if err := fn(session); err != nil {
		c.send(serverFrame{Type: frameError, Message: err.Error()})
	}
}

func (c *quizConn) closeSession() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session != nil {
		session.Close()
	}
}
