package web_test

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/centsify/centsify/internal/progress"
	"github.com/centsify/centsify/internal/quiz"
	"github.com/centsify/centsify/internal/storage"
)

type wsFrame struct {
	Type    string      `json:"type"`
	TopicID int         `json:"topic_id"`
	State   *quiz.State `json:"state"`
	Result  *struct {
		Score int `json:"score"`
		Total int `json:"total"`
	} `json:"result"`
	Progress *struct {
		Completed []int `json:"completed"`
		Unlocked  []int `json:"unlocked"`
	} `json:"progress"`
	Message string `json:"message"`
}

func dialQuiz(t *testing.T, ctx context.Context, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/quiz/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		t.Fatalf("write %v: %v", frame, err)
	}
}

func expect(t *testing.T, ctx context.Context, conn *websocket.Conn, wantType string) wsFrame {
	t.Helper()
	var f wsFrame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("reading %s frame: %v", wantType, err)
	}
	if f.Type != wantType {
		t.Fatalf("frame type = %q (%+v), want %q", f.Type, f, wantType)
	}
	return f
}

func TestQuizSocket_CompletionUnlocksNextTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	token := env.signup(t, "ana@example.com")
	conn := dialQuiz(t, ctx, env, token)

	send(t, ctx, conn, map[string]any{"type": "start", "topic_id": 3})
	expect(t, ctx, conn, "locked")

	send(t, ctx, conn, map[string]any{"type": "start", "topic_id": 1})
	f := expect(t, ctx, conn, "state")
	if f.State.Index != 0 || f.State.Total != 2 || len(f.State.Options) != 2 {
		t.Fatalf("initial state = %+v", f.State)
	}

	send(t, ctx, conn, map[string]any{"type": "answer", "option": 0})
	f = expect(t, ctx, conn, "state")
	if f.State.Selected == nil || *f.State.Selected != 0 || f.State.Correct == nil || !*f.State.Correct {
		t.Fatalf("feedback state = %+v", f.State)
	}
	f = expect(t, ctx, conn, "state")
	if f.State.Index != 1 || f.State.Selected != nil {
		t.Fatalf("advanced state = %+v", f.State)
	}

	// Wrong answer still completes the quiz.
	send(t, ctx, conn, map[string]any{"type": "answer", "option": 2})
	expect(t, ctx, conn, "state")
	f = expect(t, ctx, conn, "state")
	if !f.State.Completed {
		t.Fatalf("final state = %+v, want completed", f.State)
	}

	f = expect(t, ctx, conn, "completed")
	if f.Result.Score != 1 || f.Result.Total != 2 {
		t.Errorf("result = %+v, want 1/2", f.Result)
	}
	if !slices.Equal(f.Progress.Completed, []int{1}) || !slices.Equal(f.Progress.Unlocked, []int{2}) {
		t.Errorf("progress = %+v, want completed [1] unlocked [2]", f.Progress)
	}

	// Topic 2 is unlocked but has no quiz; topic 3 stays locked.
	send(t, ctx, conn, map[string]any{"type": "start", "topic_id": 2})
	expect(t, ctx, conn, "unavailable")
	send(t, ctx, conn, map[string]any{"type": "start", "topic_id": 3})
	expect(t, ctx, conn, "locked")

	conn.Close(websocket.StatusNormalClosure, "")

	raw, found, _ := env.kv.Get(ctx, storage.LearnerPrefix(learnerID(t, env))+progress.CompletedKey)
	if !found || raw != "[1]" {
		t.Errorf("stored progress = %q, %v; want [1]", raw, found)
	}
	if env.events.Count(quiz.EventQuizCompleted) != 1 {
		t.Errorf("completed events = %d, want 1", env.events.Count(quiz.EventQuizCompleted))
	}
}

func TestQuizSocket_Errors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	conn := dialQuiz(t, ctx, env, env.signup(t, "ana@example.com"))

	tests := []struct {
		name  string
		frame map[string]any
	}{
		{"answer without session", map[string]any{"type": "answer", "option": 0}},
		{"reset without session", map[string]any{"type": "reset"}},
		{"unknown topic", map[string]any{"type": "start", "topic_id": 99}},
		{"unknown frame", map[string]any{"type": "dance"}},
	}
	for _, tt := range tests {
		send(t, ctx, conn, tt.frame)
		if f := expect(t, ctx, conn, "error"); f.Message == "" {
			t.Errorf("%s: error frame has no message", tt.name)
		}
	}

	send(t, ctx, conn, map[string]any{"type": "start", "topic_id": 1})
	expect(t, ctx, conn, "state")

	send(t, ctx, conn, map[string]any{"type": "answer", "option": 7})
	expect(t, ctx, conn, "error")
	send(t, ctx, conn, map[string]any{"type": "answer"})
	expect(t, ctx, conn, "error")

	send(t, ctx, conn, map[string]any{"type": "close"})
	send(t, ctx, conn, map[string]any{"type": "answer", "option": 0})
	expect(t, ctx, conn, "error")
}

func TestQuizSocket_ResetCancelsPendingAdvance(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env := newTestEnvWithDelay(t, nil, 200*time.Millisecond)
	conn := dialQuiz(t, ctx, env, env.signup(t, "ana@example.com"))

	send(t, ctx, conn, map[string]any{"type": "start", "topic_id": 1})
	expect(t, ctx, conn, "state")

	send(t, ctx, conn, map[string]any{"type": "answer", "option": 0})
	send(t, ctx, conn, map[string]any{"type": "reset"})

	expect(t, ctx, conn, "state")
	f := expect(t, ctx, conn, "state")
	if f.State.Index != 0 || f.State.Score != 0 || f.State.Selected != nil {
		t.Fatalf("state after reset = %+v", f.State)
	}

	// No stale advance arrives: the next frame is the reply to this request.
	time.Sleep(300 * time.Millisecond)
	send(t, ctx, conn, map[string]any{"type": "dance"})
	expect(t, ctx, conn, "error")
}

func TestQuizSocket_Unauthorized(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := newTestEnv(t, nil)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/quiz/ws?token=bogus"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("Dial() should fail without a valid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func learnerID(t *testing.T, env *testEnv) string {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "correct-horse",
	})
	var out struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(t, resp, &out)
	return out.User.ID
}
