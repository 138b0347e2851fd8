package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/centsify/centsify/internal/auth"
	"github.com/centsify/centsify/internal/progress"
	"github.com/centsify/centsify/internal/report"
	"github.com/centsify/centsify/internal/trading"
)

const maxVoiceBody = 10 << 20

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      userView  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func newSessionResponse(u *auth.User, sess *auth.Session) sessionResponse {
	return sessionResponse{
		User:      userView{ID: u.ID, Email: u.Email, Name: u.Name},
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, sess, err := s.Auth.Signup(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(user, sess))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, sess, err := s.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(user, sess))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.Auth.Logout(r.Context(), bearerToken(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type topicView struct {
	progress.TopicStatus
	HasQuiz bool `json:"has_quiz"`
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request, user *auth.User) {
	tracker, err := s.Progress.For(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	roadmap := tracker.Roadmap()
	out := make([]topicView, 0, len(roadmap))
	for _, ts := range roadmap {
		out = append(out, topicView{TopicStatus: ts, HasQuiz: s.Content.Bank.Has(ts.Name)})
	}
	writeJSON(w, http.StatusOK, out)
}

type progressView struct {
	Completed []int `json:"completed"`
	Unlocked  []int `json:"unlocked"`
}

func progressOf(t *progress.Tracker) progressView {
	v := progressView{Completed: t.Completed(), Unlocked: []int{}}
	for _, ts := range t.Roadmap() {
		if ts.State == progress.Unlocked {
			v.Unlocked = append(v.Unlocked, ts.ID)
		}
	}
	return v
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, user *auth.User) {
	tracker, err := s.Progress.For(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progressOf(tracker))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, user *auth.User) {
	tracker, err := s.Progress.For(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	portfolio, err := s.Trader.Portfolio(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Build in memory so a failure can still produce a JSON error.
	var buf bytes.Buffer
	err = report.WriteWorkbook(&buf, report.Progress{
		LearnerName: user.Name,
		GeneratedAt: s.Now(),
		Roadmap:     tracker.Roadmap(),
		Portfolio:   portfolio,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="centsify-progress.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type portfolioView struct {
	CashCents int64             `json:"cash_cents"`
	Cash      string            `json:"cash"`
	Holdings  []trading.Holding `json:"holdings"`
}

func newPortfolioView(p trading.Portfolio) portfolioView {
	return portfolioView{CashCents: p.CashCents, Cash: trading.FormatCents(p.CashCents), Holdings: p.Lines()}
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, user *auth.User) {
	p, err := s.Trader.Portfolio(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPortfolioView(p))
}

type orderRequest struct {
	Symbol string `json:"symbol"`
	Shares int    `json:"shares"`
}

type tradeView struct {
	Side       string        `json:"side"`
	Symbol     string        `json:"symbol"`
	Shares     int           `json:"shares"`
	PriceCents int64         `json:"price_cents"`
	TotalCents int64         `json:"total_cents"`
	Portfolio  portfolioView `json:"portfolio"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, user *auth.User) {
	s.handleOrder(w, r, user, s.Trader.Buy)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request, user *auth.User) {
	s.handleOrder(w, r, user, s.Trader.Sell)
}

type orderFunc func(ctx context.Context, userID, symbol string, shares int) (trading.Trade, error)

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, user *auth.User, execute orderFunc) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trade, err := execute(r.Context(), user.ID, req.Symbol, req.Shares)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeView{
		Side:       trade.Side,
		Symbol:     trade.Symbol,
		Shares:     trade.Shares,
		PriceCents: trade.PriceCents,
		TotalCents: trade.TotalCents,
		Portfolio:  newPortfolioView(trade.Portfolio),
	})
}

type messageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAssistantMessage(w http.ResponseWriter, r *http.Request, user *auth.User) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, err := s.Assistant.Ask(r.Context(), user.ID, req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleAssistantVoice(w http.ResponseWriter, r *http.Request, user *auth.User) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVoiceBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("audio exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "reading audio")
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "audio body is empty")
		return
	}
	reply, err := s.Assistant.AskVoice(r.Context(), user.ID, audio)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
