package server

import (
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/inference"
)

// Chat history bounds. The provider sees inference.ContextMessages of the
// stored history; responses carry the last historyReturned messages.
const (
	historyKept     = 2 * inference.ContextMessages
	historyReturned = 6
	anonymousChat   = "anonymous"
)

// chatLog is per-subject conversation history. A subject's exchanges are
// serialized so replies land in submission order.
type chatLog struct {
	mu       sync.Mutex
	history  map[string][]api.ChatMessage
	subjects map[string]*sync.Mutex
}

func newChatLog() *chatLog {
	return &chatLog{
		history:  make(map[string][]api.ChatMessage),
		subjects: make(map[string]*sync.Mutex),
	}
}

// lock serializes exchanges for subject and returns the unlock func.
func (c *chatLog) lock(subject string) func() {
	c.mu.Lock()
	m, ok := c.subjects[subject]
	if !ok {
		m = &sync.Mutex{}
		c.subjects[subject] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (c *chatLog) get(subject string) []api.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.ChatMessage(nil), c.history[subject]...)
}

// append records one exchange and returns the tail to show the caller.
func (c *chatLog) append(subject string, msgs ...api.ChatMessage) []api.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := append(c.history[subject], msgs...)
	if len(h) > historyKept {
		h = append([]api.ChatMessage(nil), h[len(h)-historyKept:]...)
	}
	c.history[subject] = h
	tail := h
	if len(tail) > historyReturned {
		tail = tail[len(tail)-historyReturned:]
	}
	return append([]api.ChatMessage(nil), tail...)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}
	subject := strings.TrimSpace(req.UserID)
	if subject == "" {
		subject = anonymousChat
	}

	unlock := s.chats.lock(subject)
	defer unlock()

	reply, err := s.provider.Reply(r.Context(), s.chats.get(subject), msg)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.Warn("inference failed",
			zap.String("provider", s.provider.Name()),
			zap.String("subject_id", subject),
			zap.Error(err),
		)
		reply = inference.ErrorReply(err)
	}
	history := s.chats.append(subject,
		api.ChatMessage{Role: api.ChatRoleUser, Content: msg},
		api.ChatMessage{Role: api.ChatRoleAssistant, Content: reply},
	)
	writeJSON(w, http.StatusOK, api.ChatResponse{Reply: reply, History: history})
}
